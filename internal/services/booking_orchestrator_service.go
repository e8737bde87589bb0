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
	"github.com/nipeshtamang/ebus-sub002/pkg/validator"
	"github.com/sirupsen/logrus"
)

// Cancellation reasons written by the orchestrator
const (
	ReasonReturnLegFailed  = "return leg failed"
	ReasonPaymentNotLogged = "payment could not be recorded"
)

// BookingOrchestratorService turns seat selections into orders, bookings and
// tickets. Each leg commits in its own transaction; a failed return leg
// cancels the committed onward leg.
type BookingOrchestratorService struct {
	schedules ScheduleStore
	holds     HoldStore
	bookings  BookingStore
	payments  PaymentStore
	seatCache cache.SeatCache
	publisher events.Publisher
	tickets   TicketDispatcher
	audit     AuditLogger
	phones    *validator.PhoneValidator
	clock     clock.Clock
	config    config.BookingConfig
	logger    *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator
func NewBookingOrchestratorService(
	schedules ScheduleStore,
	holds HoldStore,
	bookings BookingStore,
	payments PaymentStore,
	seatCache cache.SeatCache,
	publisher events.Publisher,
	tickets TicketDispatcher,
	audit AuditLogger,
	clk clock.Clock,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	return &BookingOrchestratorService{
		schedules: schedules,
		holds:     holds,
		bookings:  bookings,
		payments:  payments,
		seatCache: seatCache,
		publisher: publisher,
		tickets:   tickets,
		audit:     audit,
		phones:    validator.NewPhoneValidator(),
		clock:     clk,
		config:    cfg,
		logger:    logger,
	}
}

// bookingPlan is a validated request ready to commit
type bookingPlan struct {
	order     *models.Order
	onward    *legPlan
	ret       *legPlan
	claimants []uuid.UUID
	status    models.BookingStatus
}

// legPlan is one leg with its loaded schedule
type legPlan struct {
	leg      models.Leg
	schedule *models.Schedule
	request  models.LegRequest
	holdID   *uuid.UUID
}

// ============================================================================
// CREATE BOOKING
// ============================================================================

// CreateBooking books the onward leg and, when requested, the return leg for
// the calling user. Bookings are BOOKED unless an online gateway method was
// chosen, in which case they stay PENDING until ProcessPayment.
func (s *BookingOrchestratorService) CreateBooking(ctx context.Context, req *models.BookingRequest, actor models.Actor) (*models.CreateBookingResponse, error) {
	if req.PaymentMethod != nil && !req.PaymentMethod.IsValid() {
		return nil, domain.ValidationError{Field: "payment_method", Msg: fmt.Sprintf("unsupported method %q", *req.PaymentMethod)}
	}

	status := models.BookingStatusBooked
	orderStatus := models.OrderStatusConfirmed
	if req.PaymentMethod != nil && req.PaymentMethod.IsOnlineGateway() {
		status = models.BookingStatusPending
		orderStatus = models.OrderStatusPending
	}

	order := &models.Order{
		UserID:        actor.IDPtr(),
		Status:        orderStatus,
		PaymentMethod: req.PaymentMethod,
	}

	plan, err := s.plan(req, order, []uuid.UUID{actor.UserID}, status, actor)
	if err != nil {
		return nil, err
	}

	resp, err := s.execute(ctx, plan, actor)
	if err != nil {
		return nil, err
	}

	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditBookingCreate, "order", uuidPtr(resp.Order.ID), bookingAuditDetails(resp)))
	return resp, nil
}

// CreateBookingForUser books on behalf of userID (optional) and records the
// given payment method as a completed payment covering the order
func (s *BookingOrchestratorService) CreateBookingForUser(
	ctx context.Context,
	req *models.BookingRequest,
	userID *uuid.UUID,
	actor models.Actor,
) (*models.CreateBookingResponse, error) {
	if !actor.IsAdmin() {
		return nil, domain.AuthorizationError{Msg: "admin role required"}
	}
	if req.PaymentMethod == nil {
		return nil, domain.ValidationError{Field: "payment_method", Msg: "is required"}
	}
	if !req.PaymentMethod.IsValid() {
		return nil, domain.ValidationError{Field: "payment_method", Msg: fmt.Sprintf("unsupported method %q", *req.PaymentMethod)}
	}

	order := &models.Order{
		UserID:           userID,
		Status:           models.OrderStatusConfirmed,
		PaymentMethod:    req.PaymentMethod,
		CreatedByAdminID: actor.IDPtr(),
	}

	claimants := []uuid.UUID{actor.UserID}
	if userID != nil {
		claimants = append(claimants, *userID)
	}

	plan, err := s.plan(req, order, claimants, models.BookingStatusBooked, actor)
	if err != nil {
		return nil, err
	}

	resp, err := s.execute(ctx, plan, actor)
	if err != nil {
		return nil, err
	}

	// Admin bookings are settled at the counter; record that directly
	payment := &models.Payment{
		OrderID:    resp.Order.ID,
		Amount:     resp.Order.TotalAmount,
		Currency:   resp.Order.Currency,
		Method:     *req.PaymentMethod,
		Status:     models.PaymentStatusCompleted,
		RecordedBy: actor.IDPtr(),
	}
	reference := fmt.Sprintf("ADMIN-%s-%s", *req.PaymentMethod, strings.ToUpper(resp.Order.ID.String()[:8]))
	payment.ProcessorReference = &reference

	if _, err := s.payments.Record(payment, s.clock.Now()); err != nil {
		s.logger.WithError(err).WithField("order_id", resp.Order.ID).Error("Failed to record admin payment, cancelling order")
		s.compensate(ctx, plan, resp.Order.ID, ReasonPaymentNotLogged, actor)
		return nil, domainError("failed to record payment", err)
	}
	resp.Payment = payment

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:       events.PaymentCompleted,
		OrderID:    uuidPtr(resp.Order.ID),
		PaymentID:  uuidPtr(payment.ID),
		ActorID:    actor.IDPtr(),
		Data:       map[string]interface{}{"amount": payment.Amount, "method": payment.Method},
		OccurredAt: s.clock.Now(),
	})

	details := bookingAuditDetails(resp)
	details["payment_id"] = payment.ID
	details["payment_method"] = payment.Method
	if userID != nil {
		details["on_behalf_of"] = *userID
	}
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditBookingCreateAdmin, "order", uuidPtr(resp.Order.ID), details))

	return resp, nil
}

// ============================================================================
// PLANNING
// ============================================================================

// plan validates the request and loads both schedules before anything is written
func (s *BookingOrchestratorService) plan(
	req *models.BookingRequest,
	order *models.Order,
	claimants []uuid.UUID,
	status models.BookingStatus,
	actor models.Actor,
) (*bookingPlan, error) {
	now := s.clock.Now()

	// 1. Booker contact
	name := strings.TrimSpace(req.Booker.Name)
	if name == "" {
		return nil, domain.ValidationError{Field: "booker_name", Msg: "is required"}
	}
	phone, err := s.phones.Validate(req.Booker.Phone)
	if err != nil {
		return nil, domain.ValidationError{Field: "booker_phone", Msg: err.Error(), Err: err}
	}
	order.BookerName = name
	order.BookerPhone = phone
	order.BookerEmail = req.Booker.Email
	order.Currency = s.config.Currency
	order.IsRoundTrip = req.Return != nil

	// 2. Onward leg
	onward, err := s.planLeg(models.LegOnward, req.Onward, claimants, actor, now)
	if err != nil {
		return nil, err
	}

	plan := &bookingPlan{
		order:     order,
		onward:    onward,
		claimants: claimants,
		status:    status,
	}

	// 3. Return leg
	if req.Return != nil {
		if req.Return.ScheduleID == req.Onward.ScheduleID {
			return nil, domain.ValidationError{Field: "return_schedule_id", Msg: "must differ from the onward schedule"}
		}
		ret, err := s.planLeg(models.LegReturn, *req.Return, claimants, actor, now)
		if err != nil {
			return nil, err
		}
		if !ret.schedule.DepartureAt.After(onward.schedule.DepartureAt) {
			return nil, domain.ValidationError{Field: "return_schedule_id", Msg: "must depart after the onward schedule"}
		}
		plan.ret = ret
	}

	return plan, nil
}

func (s *BookingOrchestratorService) planLeg(
	leg models.Leg,
	req models.LegRequest,
	claimants []uuid.UUID,
	actor models.Actor,
	now time.Time,
) (*legPlan, error) {
	field := string(leg)

	if len(req.Passengers) == 0 {
		return nil, domain.ValidationError{Field: field + ".passengers", Msg: "at least one passenger is required"}
	}
	seats, err := normalizeSeatNumbers(req.SeatNumbers(), s.config.MaxSeatsPerLeg)
	if err != nil {
		return nil, err
	}

	passengers := make([]models.PassengerInput, len(req.Passengers))
	for i, p := range req.Passengers {
		p.SeatNumber = seats[i]
		p.PassengerName = strings.TrimSpace(p.PassengerName)
		if p.PassengerName == "" {
			return nil, domain.ValidationError{Field: field + ".passenger_name", Msg: fmt.Sprintf("is required for seat %s", p.SeatNumber)}
		}
		phone, err := s.phones.Validate(p.PassengerPhone)
		if err != nil {
			return nil, domain.ValidationError{Field: field + ".passenger_phone", Msg: fmt.Sprintf("seat %s: %v", p.SeatNumber, err), Err: err}
		}
		p.PassengerPhone = phone
		passengers[i] = p
	}
	req.Passengers = passengers

	schedule, err := s.schedules.GetByID(req.ScheduleID)
	if err != nil {
		return nil, domainError("failed to load schedule", err)
	}
	if schedule == nil {
		return nil, domain.NotFoundError{Resource: "schedule", ID: req.ScheduleID.String()}
	}
	if schedule.HasDeparted(now) {
		return nil, domain.ValidationError{Field: field + ".schedule_id", Msg: "schedule has already departed"}
	}

	plan := &legPlan{leg: leg, schedule: schedule, request: req}

	if req.HoldID != nil {
		holdID, err := s.checkHold(*req.HoldID, schedule.ID, seats, claimants, actor, now)
		if err != nil {
			return nil, err
		}
		plan.holdID = holdID
	}

	return plan, nil
}

// checkHold validates a supplied hold. An expired or non-covering hold is
// ignored and the seats go through the regular availability check.
func (s *BookingOrchestratorService) checkHold(
	holdID, scheduleID uuid.UUID,
	seats []string,
	claimants []uuid.UUID,
	actor models.Actor,
	now time.Time,
) (*uuid.UUID, error) {
	hold, err := s.holds.GetByID(holdID)
	if err != nil {
		return nil, domainError("failed to load hold", err)
	}
	if hold == nil {
		return nil, domain.NotFoundError{Resource: "hold", ID: holdID.String()}
	}
	if hold.ScheduleID != scheduleID {
		return nil, domain.ValidationError{Field: "hold_id", Msg: "hold is for a different schedule"}
	}

	owned := actor.IsAdmin()
	for _, id := range claimants {
		if hold.IsOwnedBy(id) {
			owned = true
		}
	}
	if !owned {
		return nil, domain.AuthorizationError{Msg: "hold belongs to another user"}
	}

	if !hold.IsActive(now) || !hold.Covers(seats) {
		s.logger.WithFields(logrus.Fields{
			"hold_id": holdID,
			"state":   hold.State(now),
		}).Info("Supplied hold not usable, checking seats directly")
		return nil, nil
	}
	return &hold.ID, nil
}

// ============================================================================
// EXECUTION
// ============================================================================

// execute commits the onward leg, then the return leg. A failed return leg
// cancels the onward leg and the combined error carries the return cause.
func (s *BookingOrchestratorService) execute(ctx context.Context, plan *bookingPlan, actor models.Actor) (*models.CreateBookingResponse, error) {
	// 1. Onward leg creates the order
	onward, err := s.commitLeg(ctx, plan, plan.onward, true)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":      plan.order.ID,
		"schedule_id":   plan.onward.schedule.ID,
		"seats":         len(onward.Bookings),
		"ticket_number": onward.Ticket.TicketNumber,
	}).Info("Onward leg booked")

	resp := &models.CreateBookingResponse{
		Order:        plan.order,
		Bookings:     onward.Bookings,
		Ticket:       onward.Ticket,
		TicketNumber: onward.Ticket.TicketNumber,
	}
	legs := []*models.LegResult{onward}
	schedules := []*models.Schedule{plan.onward.schedule}

	// 2. Return leg attaches to the same order
	if plan.ret != nil {
		ret, err := s.commitLeg(ctx, plan, plan.ret, false)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", plan.order.ID).Warn("Return leg failed, cancelling onward leg")
			if compErr := s.compensate(ctx, plan, plan.order.ID, ReasonReturnLegFailed, actor); compErr != nil {
				return nil, domain.Internal("return leg failed and the onward booking could not be cancelled", compErr)
			}
			return nil, fmt.Errorf("return leg failed, onward booking cancelled: %w", domainError("failed to book return leg", err))
		}

		s.logger.WithFields(logrus.Fields{
			"order_id":      plan.order.ID,
			"schedule_id":   plan.ret.schedule.ID,
			"seats":         len(ret.Bookings),
			"ticket_number": ret.Ticket.TicketNumber,
		}).Info("Return leg booked")

		resp.Bookings = append(resp.Bookings, ret.Bookings...)
		resp.ReturnTicket = ret.Ticket
		legs = append(legs, ret)
		schedules = append(schedules, plan.ret.schedule)
	}

	// 3. After commit: events and tickets per leg
	for i, leg := range legs {
		seats := make([]string, 0, len(leg.Bookings))
		for _, b := range leg.Bookings {
			seats = append(seats, b.SeatNumber)
		}
		publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
			Type:        events.BookingCreated,
			OrderID:     uuidPtr(plan.order.ID),
			ScheduleID:  uuidPtr(schedules[i].ID),
			SeatNumbers: seats,
			ActorID:     actor.IDPtr(),
			Data: map[string]interface{}{
				"leg":           leg.Leg,
				"status":        plan.status,
				"ticket_number": leg.Ticket.TicketNumber,
				"subtotal":      leg.Subtotal,
			},
			OccurredAt: s.clock.Now(),
		})

		if s.tickets != nil {
			s.tickets.Dispatch(ctx, buildTicketMessage(plan.order, schedules[i], leg))
		}
	}

	return resp, nil
}

// commitLeg runs one leg's transaction behind the Redis seat locks
func (s *BookingOrchestratorService) commitLeg(ctx context.Context, plan *bookingPlan, leg *legPlan, newOrder bool) (*models.LegResult, error) {
	seats := leg.request.SeatNumbers()

	release, err := acquireSeatLocks(ctx, s.seatCache, s.logger, leg.schedule.ID, seats)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := s.bookings.CreateLeg(&database.LegClaim{
		Order:      plan.order,
		NewOrder:   newOrder,
		Schedule:   leg.schedule,
		Leg:        leg.leg,
		Passengers: leg.request.Passengers,
		HoldID:     leg.holdID,
		Claimants:  plan.claimants,
		Status:     plan.status,
	}, s.clock.Now())
	if err != nil {
		if !domain.IsTyped(err) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"schedule_id": leg.schedule.ID,
				"leg":         leg.leg,
			}).Error("Failed to book leg")
		}
		return nil, domainError("failed to create booking", err)
	}

	invalidateSeatMaps(ctx, s.seatCache, s.logger, leg.schedule.ID)
	return result, nil
}

// compensate cancels everything committed for an order
func (s *BookingOrchestratorService) compensate(ctx context.Context, plan *bookingPlan, orderID uuid.UUID, reason string, actor models.Actor) error {
	cancelled, err := s.bookings.CancelOrder(orderID, reason, actor.IDPtr(), s.clock.Now())
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id": orderID,
			"reason":   reason,
		}).Error("COMPENSATION FAILED: order left with active bookings")
		return err
	}

	scheduleIDs := []uuid.UUID{plan.onward.schedule.ID}
	if plan.ret != nil {
		scheduleIDs = append(scheduleIDs, plan.ret.schedule.ID)
	}
	invalidateSeatMaps(ctx, s.seatCache, s.logger, scheduleIDs...)

	seats := make([]string, 0, len(cancelled))
	for _, b := range cancelled {
		seats = append(seats, b.SeatNumber)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":       orderID,
		"reason":         reason,
		"released_seats": seats,
	}).Warn("Order compensated")

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:        events.OrderCompensated,
		OrderID:     uuidPtr(orderID),
		SeatNumbers: seats,
		ActorID:     actor.IDPtr(),
		Data:        map[string]interface{}{"reason": reason},
		OccurredAt:  s.clock.Now(),
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditOrderCompensate, "order", uuidPtr(orderID), map[string]interface{}{
		"reason":         reason,
		"released_seats": seats,
	}))
	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetOrder returns an order with its bookings, tickets and payments. Only the
// owner or an admin may read it.
func (s *BookingOrchestratorService) GetOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*models.OrderDetails, error) {
	order, err := s.bookings.GetOrder(orderID)
	if err != nil {
		return nil, domainError("failed to load order", err)
	}
	if order == nil {
		return nil, domain.NotFoundError{Resource: "order", ID: orderID.String()}
	}
	if !actor.IsAdmin() && !order.IsOwnedBy(actor.UserID) {
		return nil, domain.AuthorizationError{Msg: "order belongs to another user"}
	}

	bookings, err := s.bookings.ListOrderBookings(orderID)
	if err != nil {
		return nil, domainError("failed to load bookings", err)
	}
	tickets, err := s.bookings.ListOrderTickets(orderID)
	if err != nil {
		return nil, domainError("failed to load tickets", err)
	}
	payments, err := s.payments.ListForOrder(orderID)
	if err != nil {
		return nil, domainError("failed to load payments", err)
	}
	refunds := []models.Refund{}
	for _, p := range payments {
		list, err := s.payments.ListRefunds(p.ID)
		if err != nil {
			return nil, domainError("failed to load refunds", err)
		}
		refunds = append(refunds, list...)
	}

	return &models.OrderDetails{
		Order:    order,
		Bookings: bookings,
		Tickets:  tickets,
		Payments: payments,
		Refunds:  refunds,
	}, nil
}

func bookingAuditDetails(resp *models.CreateBookingResponse) map[string]interface{} {
	seats := make([]string, 0, len(resp.Bookings))
	for _, b := range resp.Bookings {
		seats = append(seats, fmt.Sprintf("%s:%s", b.Leg, b.SeatNumber))
	}
	details := map[string]interface{}{
		"ticket_number": resp.TicketNumber,
		"seats":         seats,
		"total_amount":  resp.Order.TotalAmount,
		"round_trip":    resp.Order.IsRoundTrip,
	}
	if resp.ReturnTicket != nil {
		details["return_ticket_number"] = resp.ReturnTicket.TicketNumber
	}
	return details
}
