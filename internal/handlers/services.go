package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// The handlers depend on these narrow views of the services so they can be
// driven by mocks in tests. The services package types satisfy them.

// ScheduleAPI is the inventory surface
type ScheduleAPI interface {
	CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest, actor models.Actor) (*models.ScheduleResponse, error)
	GetSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error)
	GetSeatMap(ctx context.Context, scheduleID uuid.UUID) (*models.SeatMap, error)
}

// HoldAPI is the seat hold surface
type HoldAPI interface {
	ReserveSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string, holdDuration *time.Duration, actor models.Actor) (*models.HoldResponse, error)
	GetHold(ctx context.Context, holdID uuid.UUID, actor models.Actor) (*models.HoldResponse, error)
	ReleaseHold(ctx context.Context, holdID uuid.UUID, actor models.Actor) (*models.HoldResponse, error)
}

// BookingAPI creates and reads orders
type BookingAPI interface {
	CreateBooking(ctx context.Context, req *models.BookingRequest, actor models.Actor) (*models.CreateBookingResponse, error)
	CreateBookingForUser(ctx context.Context, req *models.BookingRequest, userID *uuid.UUID, actor models.Actor) (*models.CreateBookingResponse, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*models.OrderDetails, error)
}

// CancellationAPI cancels bookings and moves them between statuses
type CancellationAPI interface {
	CancelBooking(ctx context.Context, bookingID uuid.UUID, req models.CancelBookingRequest, actor models.Actor) (*models.CancellationResult, error)
	AdminCancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, actor models.Actor) (*models.CancellationResult, error)
	RemoveSeatFromBooking(ctx context.Context, bookingID uuid.UUID, seatNumber string, actor models.Actor) (*models.CancellationResult, error)
	UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, req models.UpdateBookingStatusRequest, actor models.Actor) (*models.Booking, error)
}

// PaymentAPI charges and refunds orders
type PaymentAPI interface {
	ProcessPayment(ctx context.Context, bookingID uuid.UUID, amount float64, method models.PaymentMethod, actor models.Actor) (*models.Payment, error)
	RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string, actor models.Actor) (*models.RefundResult, error)
}

// SeatResetter repairs a schedule's seat state
type SeatResetter interface {
	ResetSeatStatus(ctx context.Context, scheduleID uuid.UUID, actor models.Actor) (*models.SeatResetResult, error)
}

// JobRunner runs the scheduled maintenance jobs on demand
type JobRunner interface {
	RunCleanupNow(ctx context.Context) (interface{}, error)
	RunAutoCompleteNow(ctx context.Context) (interface{}, error)
	GetJobStatus() map[string]interface{}
}

// Pinger checks the database
type Pinger interface {
	PingContext(ctx context.Context) error
}
