package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/cache"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// ScheduleService opens departures and serves their seat maps
type ScheduleService struct {
	schedules ScheduleStore
	seatCache cache.SeatCache
	audit     AuditLogger
	clock     clock.Clock
	logger    *logrus.Logger
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(
	schedules ScheduleStore,
	seatCache cache.SeatCache,
	audit AuditLogger,
	clk clock.Clock,
	logger *logrus.Logger,
) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		seatCache: seatCache,
		audit:     audit,
		clock:     clk,
		logger:    logger,
	}
}

// CreateSchedule generates the layout's seats and stores schedule and seats
// together. An unknown layout creates nothing.
func (s *ScheduleService) CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest, actor models.Actor) (*models.ScheduleResponse, error) {
	now := s.clock.Now()

	if strings.TrimSpace(req.RouteName) == "" {
		return nil, domain.ValidationError{Field: "route_name", Msg: "is required"}
	}
	if strings.TrimSpace(req.BusNumber) == "" {
		return nil, domain.ValidationError{Field: "bus_number", Msg: "is required"}
	}
	if req.Fare <= 0 {
		return nil, domain.ValidationError{Field: "fare", Msg: "must be positive"}
	}
	if !req.DepartureAt.After(now) {
		return nil, domain.ValidationError{Field: "departure_at", Msg: "must be in the future"}
	}

	specs, err := GenerateSeats(req.LayoutType, req.SeatCount)
	if err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		RouteName:   strings.TrimSpace(req.RouteName),
		BusNumber:   strings.TrimSpace(req.BusNumber),
		LayoutType:  req.LayoutType,
		SeatCount:   req.SeatCount,
		DepartureAt: req.DepartureAt.UTC(),
		Fare:        req.Fare,
		IsReturn:    req.IsReturn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	seats, err := s.schedules.CreateWithSeats(schedule, specs)
	if err != nil {
		s.logger.WithError(err).WithField("bus_number", schedule.BusNumber).Error("Failed to create schedule")
		return nil, domainError("failed to create schedule", err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"layout":      schedule.LayoutType,
		"seats":       len(seats),
		"departure":   schedule.DepartureAt,
	}).Info("Schedule created")

	safeAudit(ctx, s.audit, s.logger, NewAuditEvent(actor, AuditScheduleCreate, "schedule", uuidPtr(schedule.ID), map[string]interface{}{
		"route_name": schedule.RouteName,
		"bus_number": schedule.BusNumber,
		"layout":     schedule.LayoutType,
		"seat_count": schedule.SeatCount,
	}))

	return &models.ScheduleResponse{Schedule: schedule, Seats: seats}, nil
}

// GetSchedule returns a schedule or NotFoundError
func (s *ScheduleService) GetSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.schedules.GetByID(scheduleID)
	if err != nil {
		return nil, domainError("failed to load schedule", err)
	}
	if schedule == nil {
		return nil, domain.NotFoundError{Resource: "schedule", ID: scheduleID.String()}
	}
	return schedule, nil
}

// GetSeatMap returns each seat as available, held or booked. The map is
// served from cache when present; cache failures fall through to the database.
func (s *ScheduleService) GetSeatMap(ctx context.Context, scheduleID uuid.UUID) (*models.SeatMap, error) {
	cached, err := s.seatCache.GetSeatMap(ctx, scheduleID)
	if err != nil {
		s.logger.WithError(err).WithField("schedule_id", scheduleID).Warn("Seat map cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	seats, err := s.schedules.ListSeats(scheduleID)
	if err != nil {
		return nil, domainError("failed to load seats", err)
	}
	held, err := s.schedules.HeldSeatNumbers(scheduleID, now)
	if err != nil {
		return nil, domainError("failed to load holds", err)
	}

	seatMap := buildSeatMap(scheduleID, seats, held, now)

	if err := s.seatCache.SetSeatMap(ctx, seatMap); err != nil {
		s.logger.WithError(err).WithField("schedule_id", scheduleID).Warn("Seat map cache write failed")
	}
	return seatMap, nil
}

func buildSeatMap(scheduleID uuid.UUID, seats []models.Seat, held []string, now time.Time) *models.SeatMap {
	heldSet := make(map[string]bool, len(held))
	for _, n := range held {
		heldSet[n] = true
	}

	seatMap := &models.SeatMap{
		ScheduleID:  scheduleID,
		Seats:       make([]models.SeatAvailability, 0, len(seats)),
		GeneratedAt: now,
	}
	for _, seat := range seats {
		state := models.SeatStateAvailable
		switch {
		case seat.IsBooked:
			state = models.SeatStateBooked
		case heldSet[seat.SeatNumber]:
			state = models.SeatStateHeld
		default:
			seatMap.Available++
		}
		seatMap.Seats = append(seatMap.Seats, models.SeatAvailability{
			SeatNumber: seat.SeatNumber,
			RowNumber:  seat.RowNumber,
			Position:   seat.Position,
			State:      state,
		})
	}
	return seatMap
}
