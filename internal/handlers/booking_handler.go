package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles order creation, lookup and cancellation endpoints
type BookingHandler struct {
	bookings      BookingAPI
	cancellations CancellationAPI
	logger        *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingAPI, cancellations CancellationAPI, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings:      bookings,
		cancellations: cancellations,
		logger:        logger,
	}
}

// ============================================================================
// CREATE - POST /api/v1/bookings
// ============================================================================

// CreateBooking books one or two legs for the caller
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var body models.CreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	req, err := body.ToBookingRequest()
	if err != nil {
		respondError(c, h.logger, domain.ValidationError{Msg: err.Error(), Err: err})
		return
	}

	resp, err := h.bookings.CreateBooking(c.Request.Context(), req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CreateBookingForUser books at the counter, optionally on behalf of a user
// POST /api/v1/admin/bookings
func (h *BookingHandler) CreateBookingForUser(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var body models.AdminCreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	req, err := body.ToBookingRequest()
	if err != nil {
		respondError(c, h.logger, domain.ValidationError{Msg: err.Error(), Err: err})
		return
	}

	var userID *uuid.UUID
	if body.UserID != nil {
		id, ok := parseBodyUUID(c, "user_id", *body.UserID)
		if !ok {
			return
		}
		userID = &id
	}

	resp, err := h.bookings.CreateBookingForUser(c.Request.Context(), req, userID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetOrder returns an order with its bookings, tickets and payments
// GET /api/v1/orders/:id
func (h *BookingHandler) GetOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	details, err := h.bookings.GetOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// ============================================================================
// CANCELLATION
// ============================================================================

// CancelBooking cancels one of the caller's bookings
// PATCH /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	// The body is optional
	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	result, err := h.cancellations.CancelBooking(c.Request.Context(), bookingID, req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AdminCancelBooking cancels any booking regardless of the cutoff
// PATCH /api/v1/admin/bookings/:id/cancel
func (h *BookingHandler) AdminCancelBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req models.AdminCancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.cancellations.AdminCancelBooking(c.Request.Context(), bookingID, req.Reason, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RemoveSeatFromBooking drops one seat from an order
// DELETE /api/v1/admin/bookings/:id/seats/:seatNumber
func (h *BookingHandler) RemoveSeatFromBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	seatNumber := strings.TrimSpace(c.Param("seatNumber"))

	result, err := h.cancellations.RemoveSeatFromBooking(c.Request.Context(), bookingID, seatNumber, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateBookingStatus moves a booking to another status
// PATCH /api/v1/admin/bookings/:id/status
func (h *BookingHandler) UpdateBookingStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.cancellations.UpdateBookingStatus(c.Request.Context(), bookingID, req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
