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
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// HoldService reserves seats for a limited time ahead of booking
type HoldService struct {
	schedules ScheduleStore
	holds     HoldStore
	seatCache cache.SeatCache
	audit     AuditLogger
	clock     clock.Clock
	logger    *logrus.Logger
	config    config.BookingConfig
}

// NewHoldService creates a new HoldService
func NewHoldService(
	schedules ScheduleStore,
	holds HoldStore,
	seatCache cache.SeatCache,
	audit AuditLogger,
	clk clock.Clock,
	logger *logrus.Logger,
	cfg config.BookingConfig,
) *HoldService {
	return &HoldService{
		schedules: schedules,
		holds:     holds,
		seatCache: seatCache,
		audit:     audit,
		clock:     clk,
		logger:    logger,
		config:    cfg,
	}
}

// ReserveSeats claims every requested seat or none. holdDuration nil means
// the configured default.
func (s *HoldService) ReserveSeats(
	ctx context.Context,
	scheduleID uuid.UUID,
	seatNumbers []string,
	holdDuration *time.Duration,
	actor models.Actor,
) (*models.HoldResponse, error) {
	seats, err := normalizeSeatNumbers(seatNumbers, s.config.MaxSeatsPerLeg)
	if err != nil {
		return nil, err
	}

	duration := s.config.DefaultHoldDuration
	if holdDuration != nil {
		duration = *holdDuration
	}
	if duration < models.MinHoldDuration {
		return nil, domain.ValidationError{
			Field: "hold_duration",
			Msg:   fmt.Sprintf("must be at least %d seconds", int(models.MinHoldDuration.Seconds())),
		}
	}
	if s.config.MaxHoldDuration > 0 && duration > s.config.MaxHoldDuration {
		return nil, domain.ValidationError{
			Field: "hold_duration",
			Msg:   fmt.Sprintf("must not exceed %d seconds", int(s.config.MaxHoldDuration.Seconds())),
		}
	}

	now := s.clock.Now()

	schedule, err := s.schedules.GetByID(scheduleID)
	if err != nil {
		return nil, domainError("failed to load schedule", err)
	}
	if schedule == nil {
		return nil, domain.NotFoundError{Resource: "schedule", ID: scheduleID.String()}
	}
	if schedule.HasDeparted(now) {
		return nil, domain.ValidationError{Field: "schedule_id", Msg: "schedule has already departed"}
	}

	release, err := acquireSeatLocks(ctx, s.seatCache, s.logger, scheduleID, seats)
	if err != nil {
		return nil, err
	}
	defer release()

	hold := &models.SeatHold{
		ScheduleID:  scheduleID,
		UserID:      actor.IDPtr(),
		SeatNumbers: seats,
		ExpiresAt:   now.Add(duration),
	}
	if err := s.holds.Create(hold, now); err != nil {
		if domain.IsSeatUnavailable(err) {
			s.logger.WithFields(logrus.Fields{
				"schedule_id": scheduleID,
				"seats":       seats,
				"error":       err.Error(),
			}).Info("Seat hold rejected")
		}
		return nil, domainError("failed to create hold", err)
	}

	invalidateSeatMaps(ctx, s.seatCache, s.logger, scheduleID)

	s.logger.WithFields(logrus.Fields{
		"hold_id":     hold.ID,
		"schedule_id": scheduleID,
		"seats":       seats,
		"expires_at":  hold.ExpiresAt,
	}).Info("Seats held")

	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditHoldReserve, "hold", uuidPtr(hold.ID), map[string]interface{}{
		"schedule_id":  scheduleID,
		"seat_numbers": seats,
		"expires_at":   hold.ExpiresAt,
	}))

	return models.NewHoldResponse(hold, now), nil
}

// GetHold returns the hold as seen now; expiry is evaluated against the clock
func (s *HoldService) GetHold(ctx context.Context, holdID uuid.UUID, actor models.Actor) (*models.HoldResponse, error) {
	hold, err := s.loadOwnedHold(holdID, actor)
	if err != nil {
		return nil, err
	}
	return models.NewHoldResponse(hold, s.clock.Now()), nil
}

// ReleaseHold gives the seats of an active hold back to the pool
func (s *HoldService) ReleaseHold(ctx context.Context, holdID uuid.UUID, actor models.Actor) (*models.HoldResponse, error) {
	hold, err := s.loadOwnedHold(holdID, actor)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if state := hold.State(now); state != models.HoldStatusActive {
		return nil, domain.ValidationError{Field: "hold", Msg: fmt.Sprintf("hold is %s", state)}
	}

	released, err := s.holds.Release(holdID)
	if err != nil {
		return nil, domainError("failed to release hold", err)
	}
	if !released {
		return nil, domain.ValidationError{Field: "hold", Msg: "hold is no longer active"}
	}
	hold.Status = models.HoldStatusReleased

	invalidateSeatMaps(ctx, s.seatCache, s.logger, hold.ScheduleID)

	s.logger.WithFields(logrus.Fields{
		"hold_id":     holdID,
		"schedule_id": hold.ScheduleID,
	}).Info("Hold released")

	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditHoldRelease, "hold", uuidPtr(holdID), map[string]interface{}{
		"schedule_id":  hold.ScheduleID,
		"seat_numbers": []string(hold.SeatNumbers),
	}))

	return models.NewHoldResponse(hold, now), nil
}

func (s *HoldService) loadOwnedHold(holdID uuid.UUID, actor models.Actor) (*models.SeatHold, error) {
	hold, err := s.holds.GetByID(holdID)
	if err != nil {
		return nil, domainError("failed to load hold", err)
	}
	if hold == nil {
		return nil, domain.NotFoundError{Resource: "hold", ID: holdID.String()}
	}
	if !actor.IsAdmin() && !hold.IsOwnedBy(actor.UserID) {
		return nil, domain.AuthorizationError{Msg: "hold belongs to another user"}
	}
	return hold, nil
}

// normalizeSeatNumbers trims labels and rejects empty, duplicate or too many seats
func normalizeSeatNumbers(seatNumbers []string, max int) ([]string, error) {
	if len(seatNumbers) == 0 {
		return nil, domain.ValidationError{Field: "seat_numbers", Msg: "at least one seat is required"}
	}
	if max > 0 && len(seatNumbers) > max {
		return nil, domain.ValidationError{
			Field: "seat_numbers",
			Msg:   fmt.Sprintf("at most %d seats per request", max),
		}
	}

	seen := make(map[string]bool, len(seatNumbers))
	out := make([]string, 0, len(seatNumbers))
	for _, raw := range seatNumbers {
		label := strings.ToUpper(strings.TrimSpace(raw))
		if label == "" {
			return nil, domain.ValidationError{Field: "seat_numbers", Msg: "seat number must not be empty"}
		}
		if seen[label] {
			return nil, domain.ValidationError{Field: "seat_numbers", Msg: fmt.Sprintf("duplicate seat %s", label)}
		}
		seen[label] = true
		out = append(out, label)
	}
	return out, nil
}

// acquireSeatLocks takes the Redis fast-path locks for the duration of a
// claim. A seat locked by a concurrent request is reported as unavailable;
// a Redis failure only skips the fast path.
func acquireSeatLocks(ctx context.Context, seatCache cache.SeatCache, logger *logrus.Logger, scheduleID uuid.UUID, seats []string) (func(), error) {
	if seatCache == nil {
		return func() {}, nil
	}

	release, err := seatCache.AcquireSeatLocks(ctx, scheduleID, seats)
	if err == nil {
		return release, nil
	}
	if domain.IsSeatUnavailable(err) {
		return nil, err
	}

	logger.WithError(err).WithField("schedule_id", scheduleID).Warn("Seat lock unavailable, relying on database locks")
	if release == nil {
		release = func() {}
	}
	return release, nil
}
