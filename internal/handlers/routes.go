package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nipeshtamang/ebus-sub002/internal/middleware"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// Routes bundles every handler mounted under /api/v1
type Routes struct {
	Schedules   *ScheduleHandler
	Bookings    *BookingHandler
	Payments    *PaymentHandler
	Maintenance *MaintenanceHandler
}

// Register mounts the API. auth must set the user context the handlers read.
func (r *Routes) Register(v1 *gin.RouterGroup, auth gin.HandlerFunc) {
	adminOnly := middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)

	user := v1.Group("")
	user.Use(auth)
	{
		user.GET("/schedules/:id", r.Schedules.GetSchedule)
		user.GET("/schedules/:id/seats", r.Schedules.ListSeats)
		user.POST("/schedules", adminOnly, r.Schedules.CreateSchedule)

		user.POST("/holds", r.Schedules.ReserveSeats)
		user.GET("/holds/:id", r.Schedules.GetHold)
		user.DELETE("/holds/:id", r.Schedules.ReleaseHold)

		user.POST("/bookings", r.Bookings.CreateBooking)
		user.PATCH("/bookings/:id/cancel", r.Bookings.CancelBooking)
		user.GET("/orders/:id", r.Bookings.GetOrder)

		user.POST("/payments", r.Payments.ProcessPayment)
		user.POST("/payments/:id/refund", adminOnly, r.Payments.RefundPayment)
	}

	admin := v1.Group("/admin")
	admin.Use(auth, adminOnly)
	{
		admin.POST("/bookings", r.Bookings.CreateBookingForUser)
		admin.PATCH("/bookings/:id/cancel", r.Bookings.AdminCancelBooking)
		admin.DELETE("/bookings/:id/seats/:seatNumber", r.Bookings.RemoveSeatFromBooking)
		admin.PATCH("/bookings/:id/status", r.Bookings.UpdateBookingStatus)

		admin.POST("/schedules/:id/reset-seats", r.Maintenance.ResetSeats)

		admin.POST("/maintenance/cleanup", r.Maintenance.RunCleanup)
		admin.POST("/maintenance/auto-complete", r.Maintenance.RunAutoComplete)
		admin.GET("/maintenance/status", r.Maintenance.JobStatus)
	}
}

// HealthCheck reports whether the database answers
func HealthCheck(db Pinger, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
