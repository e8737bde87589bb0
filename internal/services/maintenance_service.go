package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/cache"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// ReasonPaymentNotCompleted is written on bookings reclaimed by the orphan sweep
const ReasonPaymentNotCompleted = "payment not completed"

// MaintenanceService reclaims inventory from abandoned checkouts and moves
// departed bookings to COMPLETED. Every job handles items one by one; a
// failed item is logged and the run continues.
type MaintenanceService struct {
	schedules ScheduleStore
	holds     HoldStore
	bookings  BookingStore
	seatCache cache.SeatCache
	publisher events.Publisher
	audit     AuditLogger
	clock     clock.Clock
	config    config.MaintenanceConfig
	logger    *logrus.Logger
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(
	schedules ScheduleStore,
	holds HoldStore,
	bookings BookingStore,
	seatCache cache.SeatCache,
	publisher events.Publisher,
	audit AuditLogger,
	clk clock.Clock,
	cfg config.MaintenanceConfig,
	logger *logrus.Logger,
) *MaintenanceService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &MaintenanceService{
		schedules: schedules,
		holds:     holds,
		bookings:  bookings,
		seatCache: seatCache,
		publisher: publisher,
		audit:     audit,
		clock:     clk,
		config:    cfg,
		logger:    logger,
	}
}

// CleanupOrphanedBookings cancels PENDING bookings older than the grace
// window whose order was never paid, then deletes expired hold rows
func (s *MaintenanceService) CleanupOrphanedBookings(ctx context.Context) (*models.CleanupResult, error) {
	now := s.clock.Now()
	result := &models.CleanupResult{RanAt: now}

	orphans, err := s.bookings.ListOrphanedPending(now.Add(-s.config.OrphanGrace), s.config.BatchSize)
	if err != nil {
		return nil, domain.Internal("failed to list orphaned bookings", err)
	}
	result.Scanned = len(orphans)

	var (
		scheduleIDs []uuid.UUID
		seen        = make(map[uuid.UUID]bool)
		orderIDs    []uuid.UUID
		seats       []string
	)
	for _, b := range orphans {
		if ctx.Err() != nil {
			s.logger.WithError(ctx.Err()).Warn("Orphan cleanup interrupted")
			break
		}

		cancelled, err := s.bookings.CancelOrphan(b.ID, ReasonPaymentNotCompleted, now)
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to cancel orphaned booking")
			continue
		}
		if !cancelled {
			result.Skipped++
			continue
		}

		result.Cancelled++
		seats = append(seats, b.SeatNumber)
		orderIDs = append(orderIDs, b.OrderID)
		if !seen[b.ScheduleID] {
			seen[b.ScheduleID] = true
			scheduleIDs = append(scheduleIDs, b.ScheduleID)
		}
	}

	deleted, err := s.holds.DeleteExpired(now, s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to delete expired holds")
	}
	result.HoldsDeleted = deleted

	if result.Cancelled > 0 {
		invalidateSeatMaps(ctx, s.seatCache, s.logger, scheduleIDs...)

		publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
			Type:        events.OrphansCancelled,
			SeatNumbers: seats,
			Data: map[string]interface{}{
				"cancelled": result.Cancelled,
				"orders":    orderIDs,
			},
			OccurredAt: now,
		})
		safeAudit(ctx, s.audit, s.logger, NewAuditEvent(models.SystemActor(), AuditOrphanCleanup, "booking", nil, map[string]interface{}{
			"cancelled": result.Cancelled,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
			"reason":    ReasonPaymentNotCompleted,
		}))
	}

	s.logger.WithFields(logrus.Fields{
		"scanned":       result.Scanned,
		"cancelled":     result.Cancelled,
		"skipped":       result.Skipped,
		"failed":        result.Failed,
		"holds_deleted": result.HoldsDeleted,
	}).Info("Orphan cleanup finished")

	return result, nil
}

// AutoCompleteBookings moves BOOKED bookings whose schedule has departed to
// COMPLETED. Running it twice changes nothing the second time.
func (s *MaintenanceService) AutoCompleteBookings(ctx context.Context) (*models.AutoCompleteResult, error) {
	now := s.clock.Now()
	result := &models.AutoCompleteResult{RanAt: now}

	ids, err := s.bookings.ListDueForCompletion(now, s.config.BatchSize)
	if err != nil {
		return nil, domain.Internal("failed to list bookings due for completion", err)
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			s.logger.WithError(ctx.Err()).Warn("Auto-complete interrupted")
			break
		}

		completed, err := s.bookings.MarkCompleted(id, now)
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("booking_id", id).Error("Failed to complete booking")
			continue
		}
		if !completed {
			result.Skipped++
			continue
		}
		result.Completed++
	}

	if result.Completed > 0 {
		publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
			Type:       events.BookingsCompleted,
			Data:       map[string]interface{}{"completed": result.Completed},
			OccurredAt: now,
		})
		safeAudit(ctx, s.audit, s.logger, NewAuditEvent(models.SystemActor(), AuditAutoComplete, "booking", nil, map[string]interface{}{
			"completed": result.Completed,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
		}))
	}

	s.logger.WithFields(logrus.Fields{
		"scanned":   result.Scanned,
		"completed": result.Completed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Auto-complete finished")

	return result, nil
}

// ResetSeatStatus forces every seat of a schedule back to unbooked and
// releases its active holds. Data repair only; bookings are left as they are.
// Cancel live bookings first: a seat that still carries one is refused as
// unavailable when booked again.
func (s *MaintenanceService) ResetSeatStatus(ctx context.Context, scheduleID uuid.UUID, actor models.Actor) (*models.SeatResetResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.AuthorizationError{Msg: "admin role required"}
	}

	schedule, err := s.schedules.GetByID(scheduleID)
	if err != nil {
		return nil, domainError("failed to load schedule", err)
	}
	if schedule == nil {
		return nil, domain.NotFoundError{Resource: "schedule", ID: scheduleID.String()}
	}

	now := s.clock.Now()
	seatsReset, holdsReleased, err := s.schedules.ResetSeats(scheduleID, now)
	if err != nil {
		return nil, domainError("failed to reset seats", err)
	}

	result := &models.SeatResetResult{
		ScheduleID:    scheduleID,
		SeatsReset:    seatsReset,
		HoldsReleased: holdsReleased,
	}

	invalidateSeatMaps(ctx, s.seatCache, s.logger, scheduleID)

	s.logger.WithFields(logrus.Fields{
		"schedule_id":    scheduleID,
		"seats_reset":    seatsReset,
		"holds_released": holdsReleased,
		"admin_id":       actor.UserID,
	}).Warn("Seat status reset")

	publishEvent(ctx, s.publisher, s.logger, events.BookingEvent{
		Type:       events.SeatsReset,
		ScheduleID: uuidPtr(scheduleID),
		ActorID:    actor.IDPtr(),
		Data: map[string]interface{}{
			"seats_reset":    seatsReset,
			"holds_released": holdsReleased,
		},
		OccurredAt: now,
	})
	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditSeatsReset, "schedule", uuidPtr(scheduleID), map[string]interface{}{
		"seats_reset":    seatsReset,
		"holds_released": holdsReleased,
	}))

	return result, nil
}

// ExpireHolds deletes hold rows past their expiry. Hold state is always
// evaluated against the clock on read, so this only keeps the table small.
func (s *MaintenanceService) ExpireHolds(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted, err := s.holds.DeleteExpired(s.clock.Now(), s.config.BatchSize)
	if err != nil {
		return 0, domain.Internal("failed to delete expired holds", err)
	}
	if deleted > 0 {
		s.logger.WithField("count", deleted).Info("Deleted expired holds")
	}
	return deleted, nil
}
