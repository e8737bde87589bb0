package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/cache"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/database"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// Cancellation reasons used when the caller gives none
const (
	ReasonCancelledByUser  = "cancelled by user"
	ReasonCancelledByAdmin = "cancelled by admin"
	ReasonSeatRemoved      = "seat removed"
)

// CancellationService cancels bookings and settles the money that goes back
type CancellationService struct {
	bookings  BookingStore
	refunds   *PaymentService
	seatCache cache.SeatCache
	publisher events.Publisher
	audit     AuditLogger
	policy    *config.CancellationPolicy
	clock     clock.Clock
	logger    *logrus.Logger
}

// NewCancellationService creates a new cancellation service
func NewCancellationService(
	bookings BookingStore,
	refunds *PaymentService,
	seatCache cache.SeatCache,
	publisher events.Publisher,
	audit AuditLogger,
	policy *config.CancellationPolicy,
	clk clock.Clock,
	logger *logrus.Logger,
) *CancellationService {
	return &CancellationService{
		bookings:  bookings,
		refunds:   refunds,
		seatCache: seatCache,
		publisher: publisher,
		audit:     audit,
		policy:    policy,
		clock:     clk,
		logger:    logger,
	}
}

// cancellation is one booking cancellation in flight
type cancellation struct {
	booking       *models.BookingWithSchedule
	reason        string
	refundPercent float64
	// settleRemainder pays back everything left on the payment when the
	// booking is the order's last
	settleRemainder bool
	auditAction     string
	eventType       events.EventType
}

// CancelBooking cancels a booking for its owner or an admin. Owners are held
// to the cutoff before departure; the override flag is reserved for admins,
// who are never held to it.
func (s *CancellationService) CancelBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	req models.CancelBookingRequest,
	actor models.Actor,
) (*models.CancellationResult, error) {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() {
		if booking.OrderUserID == nil || *booking.OrderUserID != actor.UserID {
			return nil, domain.AuthorizationError{Msg: "booking belongs to another user"}
		}
		if req.OverrideCancellationPolicy {
			return nil, domain.AuthorizationError{Msg: "only admins can override the cancellation policy"}
		}
	}

	if err := checkCancellable(booking); err != nil {
		return nil, err
	}

	timeLeft := booking.DepartureAt.Sub(s.clock.Now())
	if !actor.IsAdmin() && timeLeft < s.policy.Cutoff() {
		return nil, domain.PolicyViolationError{
			Policy: "cancellation_cutoff",
			Msg:    fmt.Sprintf("bookings cannot be cancelled within %d hours of departure", s.policy.CutoffHours),
		}
	}

	reason := ReasonCancelledByUser
	if actor.IsAdmin() {
		reason = ReasonCancelledByAdmin
	}
	if req.Reason != nil && strings.TrimSpace(*req.Reason) != "" {
		reason = strings.TrimSpace(*req.Reason)
	}

	c := &cancellation{
		booking:       booking,
		reason:        reason,
		refundPercent: s.policy.RefundPercent(timeLeft),
		auditAction:   AuditBookingCancel,
		eventType:     events.BookingCancelled,
	}
	if actor.IsAdmin() {
		c.refundPercent = 100
		c.settleRemainder = true
		c.auditAction = AuditBookingAdminCancel
	}

	return s.cancel(ctx, c, actor)
}

// AdminCancelBooking cancels any active booking regardless of the cutoff.
// A reason is mandatory and the fare is refunded in full.
func (s *CancellationService) AdminCancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, actor models.Actor) (*models.CancellationResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.AuthorizationError{Msg: "admin role required"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ValidationError{Field: "reason", Msg: "is required"}
	}

	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkCancellable(booking); err != nil {
		return nil, err
	}

	return s.cancel(ctx, &cancellation{
		booking:       booking,
		reason:          reason,
		refundPercent:   100,
		settleRemainder: true,
		auditAction:     AuditBookingAdminCancel,
		eventType:       events.BookingCancelled,
	}, actor)
}

// RemoveSeatFromBooking cancels one seat of the order bookingID belongs to.
// Removing the last active seat cancels the order.
func (s *CancellationService) RemoveSeatFromBooking(ctx context.Context, bookingID uuid.UUID, seatNumber string, actor models.Actor) (*models.CancellationResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.AuthorizationError{Msg: "admin role required"}
	}
	seatNumber = strings.ToUpper(strings.TrimSpace(seatNumber))
	if seatNumber == "" {
		return nil, domain.ValidationError{Field: "seat_number", Msg: "is required"}
	}

	anchor, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}

	target, err := s.bookings.FindActiveBySeat(anchor.OrderID, anchor.ScheduleID, seatNumber)
	if err != nil {
		return nil, domainError("failed to find seat booking", err)
	}
	if target == nil {
		return nil, domain.NotFoundError{Resource: "active booking for seat", ID: seatNumber}
	}

	booking := anchor
	if target.ID != anchor.ID {
		booking = &models.BookingWithSchedule{
			Booking:     *target,
			DepartureAt: anchor.DepartureAt,
			OrderUserID: anchor.OrderUserID,
		}
	}

	return s.cancel(ctx, &cancellation{
		booking:       booking,
		reason:          ReasonSeatRemoved,
		refundPercent:   100,
		settleRemainder: true,
		auditAction:     AuditBookingSeatRemove,
		eventType:       events.BookingSeatRemoved,
	}, actor)
}

// UpdateBookingStatus moves a booking along its state machine. A move to
// CANCELLED runs the full cancellation path.
func (s *CancellationService) UpdateBookingStatus(
	ctx context.Context,
	bookingID uuid.UUID,
	req models.UpdateBookingStatusRequest,
	actor models.Actor,
) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, domain.AuthorizationError{Msg: "admin role required"}
	}

	target, err := models.ParseBookingStatus(string(req.Status))
	if err != nil {
		return nil, domain.ValidationError{Field: "status", Msg: err.Error()}
	}

	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(target) {
		return nil, domain.ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("cannot move booking from %s to %s", booking.Status, target),
		}
	}

	if target == models.BookingStatusCancelled {
		reason := ReasonCancelledByAdmin
		if req.Reason != nil && strings.TrimSpace(*req.Reason) != "" {
			reason = strings.TrimSpace(*req.Reason)
		}
		result, err := s.cancel(ctx, &cancellation{
			booking:         booking,
			reason:          reason,
			refundPercent:   100,
			settleRemainder: true,
			auditAction:     AuditBookingStatusUpdate,
			eventType:       events.BookingStatusChanged,
		}, actor)
		if err != nil {
			return nil, err
		}
		return result.Booking, nil
	}

	now := s.clock.Now()
	changed, err := s.bookings.UpdateStatus(bookingID, booking.Status, target, now)
	if err != nil {
		return nil, domainError("failed to update booking status", err)
	}
	if !changed {
		return nil, domain.ValidationError{Field: "status", Msg: "booking status changed concurrently, reload and retry"}
	}

	from := booking.Status
	updated := booking.Booking
	updated.Status = target
	updated.UpdatedAt = now
	if target == models.BookingStatusCompleted {
		updated.CompletedAt = &now
	}

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:        events.BookingStatusChanged,
		OrderID:     uuidPtr(updated.OrderID),
		BookingID:   uuidPtr(updated.ID),
		ScheduleID:  uuidPtr(updated.ScheduleID),
		SeatNumbers: []string{updated.SeatNumber},
		ActorID:     actor.IDPtr(),
		Data:        map[string]interface{}{"from": from, "to": target},
		OccurredAt:  now,
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditBookingStatusUpdate, "booking", uuidPtr(updated.ID), map[string]interface{}{
		"from": from,
		"to":   target,
	}))

	return &updated, nil
}

// cancel commits one cancellation together with the refund it owes, then
// returns the money through the processor and runs the side effects. A
// processor failure after commit is logged and reported on the result; the
// cancellation and its refund record stand.
func (s *CancellationService) cancel(ctx context.Context, c *cancellation, actor models.Actor) (*models.CancellationResult, error) {
	now := s.clock.Now()
	committed, err := s.bookings.CancelBooking(c.booking.ID, database.CancelTerms{
		Reason:          c.reason,
		ActorID:         actor.IDPtr(),
		RefundPercent:   c.refundPercent,
		SettleRemainder: c.settleRemainder,
	}, now)
	if err != nil {
		return nil, domainError("failed to cancel booking", err)
	}

	result := &models.CancellationResult{
		Booking:        committed.Booking,
		OrderTotal:     committed.OrderTotal,
		OrderCancelled: committed.OrderCancelled,
		Payment:        committed.Payment,
		Refund:         committed.Refund,
	}

	if result.Refund != nil {
		if err := s.refunds.returnFunds(ctx, result.Payment, result.Refund.Amount); err != nil {
			result.RefundError = "refund recorded but the processor refund failed, settle it manually"
		}
	}

	invalidateSeatMaps(ctx, s.seatCache, s.logger, c.booking.ScheduleID)

	s.logger.WithFields(logrus.Fields{
		"booking_id":      c.booking.ID,
		"order_id":        c.booking.OrderID,
		"seat_number":     c.booking.SeatNumber,
		"reason":          c.reason,
		"order_cancelled": result.OrderCancelled,
	}).Info("Booking cancelled")

	data := map[string]interface{}{
		"reason":          c.reason,
		"order_total":     result.OrderTotal,
		"order_cancelled": result.OrderCancelled,
	}
	if result.Refund != nil {
		data["refund_amount"] = result.Refund.Amount
		data["refund_percent"] = c.refundPercent
	}

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:        c.eventType,
		OrderID:     uuidPtr(c.booking.OrderID),
		BookingID:   uuidPtr(c.booking.ID),
		ScheduleID:  uuidPtr(c.booking.ScheduleID),
		SeatNumbers: []string{c.booking.SeatNumber},
		ActorID:     actor.IDPtr(),
		Data:        data,
		OccurredAt:  now,
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, c.auditAction, "booking", uuidPtr(c.booking.ID), data))

	if result.Payment != nil && result.Payment.Status == models.PaymentStatusRefunded {
		s.publishPaymentRefunded(ctx, c, result, actor, now)
	}

	return result, nil
}

// publishPaymentRefunded reports a payment closed by its order's last
// cancellation
func (s *CancellationService) publishPaymentRefunded(ctx context.Context, c *cancellation, result *models.CancellationResult, actor models.Actor, now time.Time) {
	var amount float64
	if result.Refund != nil {
		amount = result.Refund.Amount
	}
	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:        events.PaymentRefunded,
		OrderID:     uuidPtr(c.booking.OrderID),
		PaymentID:   uuidPtr(result.Payment.ID),
		SeatNumbers: []string{c.booking.SeatNumber},
		ActorID:     actor.IDPtr(),
		Data:        map[string]interface{}{"amount": amount, "reason": c.reason},
		OccurredAt:  now,
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditPaymentRefund, "payment", uuidPtr(result.Payment.ID), map[string]interface{}{
		"order_id":   c.booking.OrderID,
		"booking_id": c.booking.ID,
		"amount":     amount,
		"reason":     c.reason,
	}))
}

func (s *CancellationService) loadBooking(bookingID uuid.UUID) (*models.BookingWithSchedule, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, domainError("failed to load booking", err)
	}
	if booking == nil {
		return nil, domain.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	return booking, nil
}

func checkCancellable(booking *models.BookingWithSchedule) error {
	if !booking.Status.HoldsSeat() {
		return domain.ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("booking is already %s", booking.Status),
		}
	}
	return nil
}
