package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MaintenanceHandler exposes the background jobs to admins
type MaintenanceHandler struct {
	seats  SeatResetter
	jobs   JobRunner
	logger *logrus.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(seats SeatResetter, jobs JobRunner, logger *logrus.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{seats: seats, jobs: jobs, logger: logger}
}

// ResetSeats forces every seat of a schedule back to available
// POST /api/v1/admin/schedules/:id/reset-seats
func (h *MaintenanceHandler) ResetSeats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.seats.ResetSeatStatus(c.Request.Context(), scheduleID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RunCleanup runs the orphan booking cleanup now
// POST /api/v1/admin/maintenance/cleanup
func (h *MaintenanceHandler) RunCleanup(c *gin.Context) {
	h.runJob(c, "orphan_cleanup", h.jobs.RunCleanupNow)
}

// RunAutoComplete runs the booking auto-complete now
// POST /api/v1/admin/maintenance/auto-complete
func (h *MaintenanceHandler) RunAutoComplete(c *gin.Context) {
	h.runJob(c, "auto_complete", h.jobs.RunAutoCompleteNow)
}

func (h *MaintenanceHandler) runJob(c *gin.Context, name string, run func(context.Context) (interface{}, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	h.logger.WithFields(logrus.Fields{
		"job":      name,
		"admin_id": actor.UserID,
	}).Info("Maintenance job triggered manually")

	start := time.Now()
	result, err := run(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":         name,
		"result":      result,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// JobStatus reports the scheduled jobs and their last runs
// GET /api/v1/admin/maintenance/status
func (h *MaintenanceHandler) JobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}
