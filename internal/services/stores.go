package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/database"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// ScheduleStore is the schedule and seat inventory persistence used by services
type ScheduleStore interface {
	CreateWithSeats(schedule *models.Schedule, specs []models.SeatSpec) ([]models.Seat, error)
	GetByID(scheduleID uuid.UUID) (*models.Schedule, error)
	ListSeats(scheduleID uuid.UUID) ([]models.Seat, error)
	HeldSeatNumbers(scheduleID uuid.UUID, now time.Time) ([]string, error)
	ResetSeats(scheduleID uuid.UUID, now time.Time) (seatsReset int, holdsReleased int, err error)
}

// HoldStore persists seat holds
type HoldStore interface {
	Create(hold *models.SeatHold, now time.Time) error
	GetByID(holdID uuid.UUID) (*models.SeatHold, error)
	Release(holdID uuid.UUID) (bool, error)
	DeleteExpired(now time.Time, limit int) (int, error)
}

// BookingStore persists orders, bookings and tickets
type BookingStore interface {
	CreateLeg(claim *database.LegClaim, now time.Time) (*models.LegResult, error)
	GetByID(bookingID uuid.UUID) (*models.BookingWithSchedule, error)
	GetOrder(orderID uuid.UUID) (*models.Order, error)
	ListOrderBookings(orderID uuid.UUID) ([]models.Booking, error)
	ListOrderTickets(orderID uuid.UUID) ([]models.Ticket, error)
	FindActiveBySeat(orderID, scheduleID uuid.UUID, seatNumber string) (*models.Booking, error)
	CancelBooking(bookingID uuid.UUID, terms database.CancelTerms, now time.Time) (*database.BookingCancellation, error)
	CancelOrder(orderID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) ([]models.Booking, error)
	UpdateStatus(bookingID uuid.UUID, from, to models.BookingStatus, now time.Time) (bool, error)
	ListOrphanedPending(cutoff time.Time, limit int) ([]models.Booking, error)
	CancelOrphan(bookingID uuid.UUID, reason string, now time.Time) (bool, error)
	ListDueForCompletion(now time.Time, limit int) ([]uuid.UUID, error)
	MarkCompleted(bookingID uuid.UUID, now time.Time) (bool, error)
}

// PaymentStore persists payments and refunds
type PaymentStore interface {
	GetByID(paymentID uuid.UUID) (*models.Payment, error)
	GetCompletedForOrder(orderID uuid.UUID) (*models.Payment, error)
	ListForOrder(orderID uuid.UUID) ([]models.Payment, error)
	ActiveFareTotal(orderID uuid.UUID) (float64, error)
	Record(payment *models.Payment, now time.Time) (int, error)
	Refund(paymentID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) (*models.RefundResult, error)
	ListRefunds(paymentID uuid.UUID) ([]models.Refund, error)
}

// domainError passes typed errors through and wraps anything else as an
// internal failure
func domainError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsTyped(err) {
		return err
	}
	return domain.Internal(msg, err)
}
