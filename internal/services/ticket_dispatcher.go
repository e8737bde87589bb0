package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/nipeshtamang/ebus-sub002/pkg/sms"
	"github.com/nipeshtamang/ebus-sub002/pkg/ticketpdf"
	"github.com/nipeshtamang/ebus-sub002/pkg/validator"
	"github.com/sirupsen/logrus"
)

// TicketDispatcher hands an issued ticket to delivery without blocking or
// failing the booking that issued it
type TicketDispatcher interface {
	Dispatch(ctx context.Context, msg events.TicketMessage)
}

// TicketNotifier renders the e-ticket and texts the booker
type TicketNotifier struct {
	gateway   sms.Gateway
	phones    *validator.PhoneValidator
	outputDir string
	logger    *logrus.Logger
}

// NewTicketNotifier creates a notifier. outputDir may be empty.
func NewTicketNotifier(gateway sms.Gateway, outputDir string, logger *logrus.Logger) *TicketNotifier {
	return &TicketNotifier{
		gateway:   gateway,
		phones:    validator.NewPhoneValidator(),
		outputDir: outputDir,
		logger:    logger,
	}
}

// Deliver renders the PDF, stores it when an output directory is configured
// and sends the confirmation SMS
func (n *TicketNotifier) Deliver(ctx context.Context, msg events.TicketMessage) error {
	passengers := make([]ticketpdf.Passenger, 0, len(msg.Passengers))
	for _, p := range msg.Passengers {
		passengers = append(passengers, ticketpdf.Passenger{Name: p.Name, Seat: p.Seat})
	}

	displayPhone := msg.BookerPhone
	if formatted, err := n.phones.Format(msg.BookerPhone); err == nil {
		displayPhone = formatted
	}

	pdf, filename, err := ticketpdf.Render(ticketpdf.Ticket{
		TicketNumber: msg.TicketNumber,
		OrderID:      msg.OrderID.String(),
		Leg:          msg.Leg,
		RouteName:    msg.RouteName,
		BusNumber:    msg.BusNumber,
		DepartureAt:  msg.DepartureAt,
		BookerName:   msg.BookerName,
		BookerPhone:  displayPhone,
		Passengers:   passengers,
		Total:        msg.Subtotal,
		Currency:     msg.Currency,
		QRPayload:    msg.QRPayload,
	})
	if err != nil {
		return fmt.Errorf("failed to render ticket: %w", err)
	}

	if n.outputDir != "" {
		if err := os.MkdirAll(n.outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create ticket directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(n.outputDir, filename), pdf, 0o644); err != nil {
			return fmt.Errorf("failed to write ticket: %w", err)
		}
	}

	if msg.BookerPhone == "" {
		return nil
	}

	reference, err := n.gateway.Send(msg.BookerPhone, TicketSMSText(msg))
	if err != nil {
		return fmt.Errorf("failed to send ticket SMS via %s: %w", n.gateway.GetName(), err)
	}

	operator, _ := n.phones.GetOperator(msg.BookerPhone)
	n.logger.WithFields(logrus.Fields{
		"ticket_number": msg.TicketNumber,
		"order_id":      msg.OrderID,
		"gateway":       n.gateway.GetName(),
		"operator":      operator,
		"reference":     reference,
		"pdf_bytes":     len(pdf),
	}).Info("Ticket delivered")
	return nil
}

// TicketSMSText is the confirmation text sent to the booker
func TicketSMSText(msg events.TicketMessage) string {
	seats := make([]string, 0, len(msg.Passengers))
	for _, p := range msg.Passengers {
		seats = append(seats, p.Seat)
	}
	return fmt.Sprintf("eBus ticket %s: %s, bus %s, departs %s. Seats %s. Total %s %.2f",
		msg.TicketNumber,
		msg.RouteName,
		msg.BusNumber,
		msg.DepartureAt.Format("2006-01-02 15:04"),
		strings.Join(seats, ","),
		msg.Currency,
		msg.Subtotal,
	)
}

// AsyncTicketDispatcher delivers tickets in-process on a goroutine
type AsyncTicketDispatcher struct {
	notifier *TicketNotifier
	logger   *logrus.Logger
	wg       sync.WaitGroup
}

// NewAsyncTicketDispatcher creates an in-process dispatcher
func NewAsyncTicketDispatcher(notifier *TicketNotifier, logger *logrus.Logger) *AsyncTicketDispatcher {
	return &AsyncTicketDispatcher{notifier: notifier, logger: logger}
}

// Dispatch delivers msg in the background
func (d *AsyncTicketDispatcher) Dispatch(ctx context.Context, msg events.TicketMessage) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*sideEffectTimeout)
		defer cancel()

		if err := d.notifier.Deliver(ctx, msg); err != nil {
			d.logger.WithError(err).WithField("ticket_number", msg.TicketNumber).Error("Ticket delivery failed")
		}
	}()
}

// Wait blocks until in-flight deliveries finish; used on shutdown
func (d *AsyncTicketDispatcher) Wait() {
	d.wg.Wait()
}

// KafkaTicketDispatcher publishes tickets for cmd/notifier to deliver
type KafkaTicketDispatcher struct {
	publisher events.Publisher
	logger    *logrus.Logger
}

// NewKafkaTicketDispatcher creates a dispatcher that publishes to the ticket topic
func NewKafkaTicketDispatcher(publisher events.Publisher, logger *logrus.Logger) *KafkaTicketDispatcher {
	return &KafkaTicketDispatcher{publisher: publisher, logger: logger}
}

// Dispatch publishes msg; a broker failure is logged
func (d *KafkaTicketDispatcher) Dispatch(ctx context.Context, msg events.TicketMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := d.publisher.PublishTicket(ctx, msg); err != nil {
		d.logger.WithError(err).WithField("ticket_number", msg.TicketNumber).Error("Failed to publish ticket")
	}
}

// buildTicketMessage collects what delivery needs for one committed leg
func buildTicketMessage(order *models.Order, schedule *models.Schedule, leg *models.LegResult) events.TicketMessage {
	passengers := make([]events.TicketPassenger, 0, len(leg.Bookings))
	for _, b := range leg.Bookings {
		passengers = append(passengers, events.TicketPassenger{
			Name:  b.PassengerName,
			Phone: b.PassengerPhone,
			Seat:  b.SeatNumber,
		})
	}

	return events.TicketMessage{
		TicketNumber: leg.Ticket.TicketNumber,
		OrderID:      order.ID,
		Leg:          string(leg.Leg),
		QRPayload:    leg.Ticket.QRPayload,
		RouteName:    schedule.RouteName,
		BusNumber:    schedule.BusNumber,
		DepartureAt:  schedule.DepartureAt,
		BookerName:   order.BookerName,
		BookerPhone:  order.BookerPhone,
		BookerEmail:  order.BookerEmail,
		Passengers:   passengers,
		Subtotal:     leg.Subtotal,
		Currency:     order.Currency,
		IssuedAt:     leg.Ticket.IssuedAt,
	}
}
