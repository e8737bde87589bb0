package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// ScheduleHandler serves schedules, their seats and seat holds
type ScheduleHandler struct {
	schedules ScheduleAPI
	holds     HoldAPI
	logger    *logrus.Logger
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(schedules ScheduleAPI, holds HoldAPI, logger *logrus.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		holds:     holds,
		logger:    logger,
	}
}

// ============================================================================
// SCHEDULES
// ============================================================================

// CreateSchedule creates a schedule and generates its seats
// POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.schedules.CreateSchedule(c.Request.Context(), &req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetSchedule returns one schedule
// GET /api/v1/schedules/:id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	scheduleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	schedule, err := h.schedules.GetSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, schedule)
}

// ListSeats returns the seat map of a schedule
// GET /api/v1/schedules/:id/seats
func (h *ScheduleHandler) ListSeats(c *gin.Context) {
	scheduleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	seatMap, err := h.schedules.GetSeatMap(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, seatMap)
}

// ============================================================================
// HOLDS
// ============================================================================

// ReserveSeats places a hold on seats of one schedule
// POST /api/v1/holds
func (h *ScheduleHandler) ReserveSeats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.ReserveSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	scheduleID, ok := parseBodyUUID(c, "schedule_id", req.ScheduleID)
	if !ok {
		return
	}

	var duration *time.Duration
	if req.HoldDuration != nil {
		d := time.Duration(*req.HoldDuration) * time.Second
		duration = &d
	}

	hold, err := h.holds.ReserveSeats(c.Request.Context(), scheduleID, req.SeatNumbers, duration, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, hold)
}

// GetHold returns a hold descriptor as of now
// GET /api/v1/holds/:id
func (h *ScheduleHandler) GetHold(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	holdID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	hold, err := h.holds.GetHold(c.Request.Context(), holdID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, hold)
}

// ReleaseHold gives the held seats back before expiry
// DELETE /api/v1/holds/:id
func (h *ScheduleHandler) ReleaseHold(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	holdID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	hold, err := h.holds.ReleaseHold(c.Request.Context(), holdID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, hold)
}
