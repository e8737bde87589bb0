package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/cache"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentService charges orders and refunds payments
type PaymentService struct {
	bookings   BookingStore
	payments   PaymentStore
	processors *ProcessorSet
	seatCache  cache.SeatCache
	publisher  events.Publisher
	audit      AuditLogger
	clock      clock.Clock
	logger     *logrus.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	bookings BookingStore,
	payments PaymentStore,
	processors *ProcessorSet,
	seatCache cache.SeatCache,
	publisher events.Publisher,
	audit AuditLogger,
	clk clock.Clock,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		bookings:   bookings,
		payments:   payments,
		processors: processors,
		seatCache:  seatCache,
		publisher:  publisher,
		audit:      audit,
		clock:      clk,
		logger:     logger,
	}
}

// ProcessPayment charges the order a booking belongs to. The amount must
// equal the fares of the order's active bookings. A declined charge is
// recorded as a FAILED payment and returned without an error.
func (s *PaymentService) ProcessPayment(
	ctx context.Context,
	bookingID uuid.UUID,
	amount float64,
	method models.PaymentMethod,
	actor models.Actor,
) (*models.Payment, error) {
	if !method.IsValid() {
		return nil, domain.ValidationError{Field: "method", Msg: "unsupported payment method"}
	}
	if amount <= 0 {
		return nil, domain.ValidationError{Field: "amount", Msg: "must be greater than zero"}
	}

	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, domainError("failed to load booking", err)
	}
	if booking == nil {
		return nil, domain.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if !actor.IsAdmin() && (booking.OrderUserID == nil || *booking.OrderUserID != actor.UserID) {
		return nil, domain.AuthorizationError{Msg: "booking belongs to another user"}
	}

	order, err := s.bookings.GetOrder(booking.OrderID)
	if err != nil {
		return nil, domainError("failed to load order", err)
	}
	if order == nil {
		return nil, domain.NotFoundError{Resource: "order", ID: booking.OrderID.String()}
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, domain.ValidationError{Field: "order", Msg: "order is cancelled"}
	}

	// Cheap pre-check before the processor is called; Record repeats it under lock
	total, err := s.payments.ActiveFareTotal(order.ID)
	if err != nil {
		return nil, domainError("failed to total fares", err)
	}
	if !models.AmountsEqual(total, amount) {
		return nil, domain.ValidationError{
			Field: "amount",
			Msg:   "amount does not match the fares of the active bookings",
		}
	}

	processor := s.processors.For(method)
	payment := &models.Payment{
		OrderID:    order.ID,
		Amount:     amount,
		Currency:   order.Currency,
		Method:     method,
		RecordedBy: actor.IDPtr(),
	}

	result, chargeErr := processor.Charge(ctx, ChargeRequest{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: order.Currency,
		Method:   method,
	})
	switch {
	case chargeErr != nil:
		s.logger.WithError(chargeErr).WithFields(logrus.Fields{
			"order_id":  order.ID,
			"processor": processor.Name(),
		}).Error("Payment processor call failed")
		reason := "payment processor unavailable"
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = &reason
	case result.Approved:
		payment.Status = models.PaymentStatusCompleted
		payment.ProcessorReference = nonEmpty(result.Reference)
	default:
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = nonEmpty(result.FailureReason)
		payment.ProcessorReference = nonEmpty(result.Reference)
	}

	now := s.clock.Now()
	promoted, err := s.payments.Record(payment, now)
	if err != nil {
		return nil, domainError("failed to record payment", err)
	}

	eventType := events.PaymentCompleted
	if payment.Status != models.PaymentStatusCompleted {
		eventType = events.PaymentFailed
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":        payment.ID,
		"order_id":          order.ID,
		"status":            payment.Status,
		"method":            method,
		"bookings_promoted": promoted,
	}).Info("Payment processed")

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:      eventType,
		OrderID:   uuidPtr(order.ID),
		BookingID: uuidPtr(bookingID),
		PaymentID: uuidPtr(payment.ID),
		ActorID:   actor.IDPtr(),
		Data: map[string]interface{}{
			"amount": amount,
			"method": method,
		},
		OccurredAt: now,
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditPaymentProcess, "payment", uuidPtr(payment.ID), map[string]interface{}{
		"order_id":          order.ID,
		"booking_id":        bookingID,
		"amount":            amount,
		"method":            method,
		"status":            payment.Status,
		"bookings_promoted": promoted,
	}))

	return payment, nil
}

// RefundPayment refunds a completed payment in full and cancels every
// booking still active on its order. Only admins may call it directly.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string, actor models.Actor) (*models.RefundResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.AuthorizationError{Msg: "only admins can refund payments"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ValidationError{Field: "reason", Msg: "is required"}
	}
	return s.refund(ctx, paymentID, reason, actor)
}

// refund does the work of RefundPayment for trusted callers
func (s *PaymentService) refund(ctx context.Context, paymentID uuid.UUID, reason string, actor models.Actor) (*models.RefundResult, error) {
	now := s.clock.Now()
	result, err := s.payments.Refund(paymentID, reason, actor.IDPtr(), now)
	if err != nil {
		return nil, domainError("failed to refund payment", err)
	}

	if result.Refund.Amount > 0 {
		_ = s.returnFunds(ctx, result.Payment, result.Refund.Amount)
	}

	if len(result.ReleasedSeats) > 0 {
		s.invalidateOrderSeatMaps(ctx, result.Payment.OrderID)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":     paymentID,
		"order_id":       result.Payment.OrderID,
		"amount":         result.Refund.Amount,
		"released_seats": result.ReleasedSeats,
	}).Info("Payment refunded")

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:        events.PaymentRefunded,
		OrderID:     uuidPtr(result.Payment.OrderID),
		PaymentID:   uuidPtr(paymentID),
		SeatNumbers: result.ReleasedSeats,
		ActorID:     actor.IDPtr(),
		Data: map[string]interface{}{
			"amount": result.Refund.Amount,
			"reason": reason,
		},
		OccurredAt: now,
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditPaymentRefund, "payment", uuidPtr(paymentID), map[string]interface{}{
		"order_id":       result.Payment.OrderID,
		"amount":         result.Refund.Amount,
		"reason":         reason,
		"released_seats": result.ReleasedSeats,
	}))

	return result, nil
}

// returnFunds sends a committed refund back through the payment's processor.
// Money goes back only after the ledger commits; a processor failure is logged
// for manual follow up and does not undo the refund record.
func (s *PaymentService) returnFunds(ctx context.Context, payment *models.Payment, amount float64) error {
	processor := s.processors.For(payment.Method)
	if processor == nil {
		return nil
	}
	if err := processor.Refund(ctx, payment, amount); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"amount":     amount,
			"processor":  processor.Name(),
		}).Error("Processor refund failed, settle manually")
		return err
	}
	return nil
}

// invalidateOrderSeatMaps drops the cached seat maps of every schedule an
// order touches
func (s *PaymentService) invalidateOrderSeatMaps(ctx context.Context, orderID uuid.UUID) {
	bookings, err := s.bookings.ListOrderBookings(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to list bookings for seat map invalidation")
		return
	}

	seen := make(map[uuid.UUID]bool)
	var scheduleIDs []uuid.UUID
	for _, b := range bookings {
		if !seen[b.ScheduleID] {
			seen[b.ScheduleID] = true
			scheduleIDs = append(scheduleIDs, b.ScheduleID)
		}
	}
	invalidateSeatMaps(ctx, s.seatCache, s.logger, scheduleIDs...)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
