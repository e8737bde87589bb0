package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/database"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

type mockScheduleStore struct{ mock.Mock }

func (m *mockScheduleStore) CreateWithSeats(schedule *models.Schedule, specs []models.SeatSpec) ([]models.Seat, error) {
	args := m.Called(schedule, specs)
	seats, _ := args.Get(0).([]models.Seat)
	return seats, args.Error(1)
}

func (m *mockScheduleStore) GetByID(scheduleID uuid.UUID) (*models.Schedule, error) {
	args := m.Called(scheduleID)
	schedule, _ := args.Get(0).(*models.Schedule)
	return schedule, args.Error(1)
}

func (m *mockScheduleStore) ListSeats(scheduleID uuid.UUID) ([]models.Seat, error) {
	args := m.Called(scheduleID)
	seats, _ := args.Get(0).([]models.Seat)
	return seats, args.Error(1)
}

func (m *mockScheduleStore) HeldSeatNumbers(scheduleID uuid.UUID, now time.Time) ([]string, error) {
	args := m.Called(scheduleID, now)
	held, _ := args.Get(0).([]string)
	return held, args.Error(1)
}

func (m *mockScheduleStore) ResetSeats(scheduleID uuid.UUID, now time.Time) (int, int, error) {
	args := m.Called(scheduleID, now)
	return args.Int(0), args.Int(1), args.Error(2)
}

type mockHoldStore struct{ mock.Mock }

func (m *mockHoldStore) Create(hold *models.SeatHold, now time.Time) error {
	args := m.Called(hold, now)
	if args.Error(0) == nil {
		hold.ID = uuid.New()
		hold.Status = models.HoldStatusActive
		hold.CreatedAt = now
	}
	return args.Error(0)
}

func (m *mockHoldStore) GetByID(holdID uuid.UUID) (*models.SeatHold, error) {
	args := m.Called(holdID)
	hold, _ := args.Get(0).(*models.SeatHold)
	return hold, args.Error(1)
}

func (m *mockHoldStore) Release(holdID uuid.UUID) (bool, error) {
	args := m.Called(holdID)
	return args.Bool(0), args.Error(1)
}

func (m *mockHoldStore) DeleteExpired(now time.Time, limit int) (int, error) {
	args := m.Called(now, limit)
	return args.Int(0), args.Error(1)
}

type mockBookingStore struct{ mock.Mock }

func (m *mockBookingStore) CreateLeg(claim *database.LegClaim, now time.Time) (*models.LegResult, error) {
	args := m.Called(claim, now)
	result, _ := args.Get(0).(*models.LegResult)
	return result, args.Error(1)
}

func (m *mockBookingStore) GetByID(bookingID uuid.UUID) (*models.BookingWithSchedule, error) {
	args := m.Called(bookingID)
	b, _ := args.Get(0).(*models.BookingWithSchedule)
	return b, args.Error(1)
}

func (m *mockBookingStore) GetOrder(orderID uuid.UUID) (*models.Order, error) {
	args := m.Called(orderID)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *mockBookingStore) ListOrderBookings(orderID uuid.UUID) ([]models.Booking, error) {
	args := m.Called(orderID)
	bookings, _ := args.Get(0).([]models.Booking)
	return bookings, args.Error(1)
}

func (m *mockBookingStore) ListOrderTickets(orderID uuid.UUID) ([]models.Ticket, error) {
	args := m.Called(orderID)
	tickets, _ := args.Get(0).([]models.Ticket)
	return tickets, args.Error(1)
}

func (m *mockBookingStore) FindActiveBySeat(orderID, scheduleID uuid.UUID, seatNumber string) (*models.Booking, error) {
	args := m.Called(orderID, scheduleID, seatNumber)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) CancelBooking(bookingID uuid.UUID, terms database.CancelTerms, now time.Time) (*database.BookingCancellation, error) {
	args := m.Called(bookingID, terms, now)
	c, _ := args.Get(0).(*database.BookingCancellation)
	return c, args.Error(1)
}

func (m *mockBookingStore) CancelOrder(orderID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) ([]models.Booking, error) {
	args := m.Called(orderID, reason, actorID, now)
	bookings, _ := args.Get(0).([]models.Booking)
	return bookings, args.Error(1)
}

func (m *mockBookingStore) UpdateStatus(bookingID uuid.UUID, from, to models.BookingStatus, now time.Time) (bool, error) {
	args := m.Called(bookingID, from, to, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookingStore) ListOrphanedPending(cutoff time.Time, limit int) ([]models.Booking, error) {
	args := m.Called(cutoff, limit)
	bookings, _ := args.Get(0).([]models.Booking)
	return bookings, args.Error(1)
}

func (m *mockBookingStore) CancelOrphan(bookingID uuid.UUID, reason string, now time.Time) (bool, error) {
	args := m.Called(bookingID, reason, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookingStore) ListDueForCompletion(now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(now, limit)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *mockBookingStore) MarkCompleted(bookingID uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(bookingID, now)
	return args.Bool(0), args.Error(1)
}

type mockPaymentStore struct{ mock.Mock }

func (m *mockPaymentStore) GetByID(paymentID uuid.UUID) (*models.Payment, error) {
	args := m.Called(paymentID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) GetCompletedForOrder(orderID uuid.UUID) (*models.Payment, error) {
	args := m.Called(orderID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) ListForOrder(orderID uuid.UUID) ([]models.Payment, error) {
	args := m.Called(orderID)
	payments, _ := args.Get(0).([]models.Payment)
	return payments, args.Error(1)
}

func (m *mockPaymentStore) ActiveFareTotal(orderID uuid.UUID) (float64, error) {
	args := m.Called(orderID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockPaymentStore) Record(payment *models.Payment, now time.Time) (int, error) {
	args := m.Called(payment, now)
	if args.Error(1) == nil {
		payment.ID = uuid.New()
		payment.CreatedAt = now
		payment.UpdatedAt = now
	}
	return args.Int(0), args.Error(1)
}

func (m *mockPaymentStore) Refund(paymentID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) (*models.RefundResult, error) {
	args := m.Called(paymentID, reason, actorID, now)
	r, _ := args.Get(0).(*models.RefundResult)
	return r, args.Error(1)
}

func (m *mockPaymentStore) ListRefunds(paymentID uuid.UUID) ([]models.Refund, error) {
	args := m.Called(paymentID)
	refunds, _ := args.Get(0).([]models.Refund)
	return refunds, args.Error(1)
}

// ---------------------------------------------------------------------------
// Side effects
// ---------------------------------------------------------------------------

// stubSeatCache never caches and records lock requests
type stubSeatCache struct {
	mu          sync.Mutex
	lockErr     error
	locked      [][]string
	invalidated []uuid.UUID
	seatMap     *models.SeatMap
	stored      *models.SeatMap
}

func (c *stubSeatCache) AcquireSeatLocks(_ context.Context, _ uuid.UUID, seats []string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockErr != nil {
		return func() {}, c.lockErr
	}
	c.locked = append(c.locked, seats)
	return func() {}, nil
}

func (c *stubSeatCache) GetSeatMap(context.Context, uuid.UUID) (*models.SeatMap, error) {
	return c.seatMap, nil
}

func (c *stubSeatCache) SetSeatMap(_ context.Context, seatMap *models.SeatMap) error {
	c.stored = seatMap
	return nil
}

func (c *stubSeatCache) InvalidateSeatMap(_ context.Context, scheduleID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, scheduleID)
	return nil
}

func (c *stubSeatCache) Ping(context.Context) error { return nil }

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu      sync.Mutex
	events  []events.BookingEvent
	tickets []events.TicketMessage
}

func (p *recordingPublisher) PublishBooking(_ context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishTicket(_ context.Context, msg events.TicketMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickets = append(p.tickets, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// recordingDispatcher keeps dispatched tickets
type recordingDispatcher struct {
	mu      sync.Mutex
	tickets []events.TicketMessage
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg events.TicketMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tickets = append(d.tickets, msg)
}

// recordingAudit keeps audit entries
type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEvent
}

func (a *recordingAudit) Log(_ context.Context, event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, event)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func userActor() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleUser, IPAddress: "203.0.113.7"}
}

func adminActor() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleAdmin, IPAddress: "203.0.113.8"}
}
