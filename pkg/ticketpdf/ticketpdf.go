// Package ticketpdf renders printable e-tickets.
package ticketpdf

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
)

// Passenger is one seat on the ticket
type Passenger struct {
	Name string
	Seat string
}

// Ticket is the data printed on one leg's e-ticket
type Ticket struct {
	TicketNumber string
	OrderID      string
	Leg          string
	RouteName    string
	BusNumber    string
	DepartureAt  time.Time
	BookerName   string
	BookerPhone  string
	Passengers   []Passenger
	Total        float64
	Currency     string
	QRPayload    string
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Render builds the PDF and a download filename
func Render(t Ticket) ([]byte, string, error) {
	if t.TicketNumber == "" {
		return nil, "", fmt.Errorf("ticket number is required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+t.TicketNumber, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Ticket No   : %s", t.TicketNumber),
		fmt.Sprintf("Order       : %s", safe(t.OrderID)),
		fmt.Sprintf("Journey     : %s", legLabel(t.Leg)),
		fmt.Sprintf("Route       : %s", safe(t.RouteName)),
		fmt.Sprintf("Bus         : %s", safe(t.BusNumber)),
		fmt.Sprintf("Departure   : %s", departure(t.DepartureAt)),
		fmt.Sprintf("Booked by   : %s (%s)", safe(t.BookerName), safe(t.BookerPhone)),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(30, 8, "Seat", "1", 0, "C", false, 0, "")
	pdf.CellFormat(120, 8, "Passenger", "1", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	for _, p := range t.Passengers {
		pdf.CellFormat(30, 8, p.Seat, "1", 0, "C", false, 0, "")
		pdf.CellFormat(120, 8, safe(p.Name), "1", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total: %s %.2f", safe(t.Currency), t.Total))
	pdf.Ln(12)

	// Scanner payload printed verbatim; gate staff key it in when a scan fails
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(0, 5, "Verification: "+t.QRPayload, "1", "", false)

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Show this ticket when boarding. Cancellations close before departure as per the cancellation policy.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to render ticket: %w", err)
	}

	filename := fmt.Sprintf("ETICKET_%s.pdf", unsafeFilename.ReplaceAllString(t.TicketNumber, "_"))
	return buf.Bytes(), filename, nil
}

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func legLabel(leg string) string {
	if leg == "return" {
		return "Return"
	}
	return "Onward"
}

func departure(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04 MST")
}
