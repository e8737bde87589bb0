package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType names a booking lifecycle event
type EventType string

const (
	BookingCreated       EventType = "booking.created"
	BookingCancelled     EventType = "booking.cancelled"
	BookingSeatRemoved   EventType = "booking.seat_removed"
	BookingStatusChanged EventType = "booking.status_changed"
	BookingsCompleted    EventType = "bookings.completed"
	OrphansCancelled     EventType = "bookings.orphans_cancelled"
	OrderCompensated     EventType = "order.compensated"
	PaymentCompleted     EventType = "payment.completed"
	PaymentFailed        EventType = "payment.failed"
	PaymentRefunded      EventType = "payment.refunded"
	SeatsReset           EventType = "schedule.seats_reset"
	TicketIssued         EventType = "ticket.issued"
)

// BookingEvent is published on the booking topic, keyed by order id
type BookingEvent struct {
	Type        EventType              `json:"type"`
	OrderID     *uuid.UUID             `json:"order_id,omitempty"`
	BookingID   *uuid.UUID             `json:"booking_id,omitempty"`
	PaymentID   *uuid.UUID             `json:"payment_id,omitempty"`
	ScheduleID  *uuid.UUID             `json:"schedule_id,omitempty"`
	SeatNumbers []string               `json:"seat_numbers,omitempty"`
	ActorID     *uuid.UUID             `json:"actor_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// Key returns the partition key; events of one order stay ordered
func (e BookingEvent) Key() string {
	switch {
	case e.OrderID != nil:
		return e.OrderID.String()
	case e.ScheduleID != nil:
		return e.ScheduleID.String()
	default:
		return string(e.Type)
	}
}

// TicketPassenger is one seat on an issued ticket
type TicketPassenger struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Seat  string `json:"seat"`
}

// TicketMessage carries everything needed to render and deliver a ticket
// without reading the database
type TicketMessage struct {
	TicketNumber string            `json:"ticket_number"`
	OrderID      uuid.UUID         `json:"order_id"`
	Leg          string            `json:"leg"`
	QRPayload    string            `json:"qr_payload"`
	RouteName    string            `json:"route_name"`
	BusNumber    string            `json:"bus_number"`
	DepartureAt  time.Time         `json:"departure_at"`
	BookerName   string            `json:"booker_name"`
	BookerPhone  string            `json:"booker_phone"`
	BookerEmail  *string           `json:"booker_email,omitempty"`
	Passengers   []TicketPassenger `json:"passengers"`
	Subtotal     float64           `json:"subtotal"`
	Currency     string            `json:"currency"`
	IssuedAt     time.Time         `json:"issued_at"`
}

// Publisher sends booking events and ticket messages
type Publisher interface {
	PublishBooking(ctx context.Context, event BookingEvent) error
	PublishTicket(ctx context.Context, msg TicketMessage) error
	Close() error
}

// LogPublisher writes events to the log; used when no brokers are configured
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishBooking(_ context.Context, event BookingEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event": event.Type,
		"key":   event.Key(),
	}).Debug("Booking event (no broker configured)")
	return nil
}

func (p *LogPublisher) PublishTicket(_ context.Context, msg TicketMessage) error {
	p.logger.WithField("ticket_number", msg.TicketNumber).Debug("Ticket message (no broker configured)")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
