package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentHandler handles payment and refund endpoints
type PaymentHandler struct {
	payments PaymentAPI
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentAPI, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// ProcessPayment charges the order a booking belongs to. A declined charge
// is still a 200; the payment status tells the client what happened.
// POST /api/v1/payments
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	bookingID, ok := parseBodyUUID(c, "booking_id", req.BookingID)
	if !ok {
		return
	}

	payment, err := h.payments.ProcessPayment(c.Request.Context(), bookingID, req.Amount, req.Method, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// RefundPayment refunds what is left of a completed payment
// POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req models.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.payments.RefundPayment(c.Request.Context(), paymentID, req.Reason, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
