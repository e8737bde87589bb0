package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/middleware"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/nipeshtamang/ebus-sub002/internal/utils"
	"github.com/sirupsen/logrus"
)

// Error codes carried in the "error" field of every failure body
const (
	CodeValidation      = "validation_error"
	CodeSeatUnavailable = "seat_unavailable"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodePolicyViolation = "policy_violation"
	CodeUnauthorized    = "unauthorized"
	CodeInternal        = "internal_error"
)

// respondError maps a service error onto its status code and body. Anything
// that is not a domain error is treated as internal and its text is hidden.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validation  domain.ValidationError
		unavailable domain.SeatUnavailableError
		notFound    domain.NotFoundError
		authz       domain.AuthorizationError
		policy      domain.PolicyViolationError
	)

	switch {
	case errors.As(err, &validation):
		body := gin.H{"error": CodeValidation, "message": validation.Error()}
		if validation.Field != "" {
			body["details"] = gin.H{"field": validation.Field}
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &unavailable):
		c.JSON(http.StatusConflict, gin.H{
			"error":   CodeSeatUnavailable,
			"message": unavailable.Error(),
			"details": gin.H{
				"schedule_id": unavailable.ScheduleID,
				"seats":       unavailable.Seats,
			},
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": CodeNotFound, "message": notFound.Error()})
	case errors.As(err, &authz):
		c.JSON(http.StatusForbidden, gin.H{"error": CodeForbidden, "message": authz.Error()})
	case errors.As(err, &policy):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   CodePolicyViolation,
			"message": policy.Error(),
			"details": gin.H{"policy": policy.Policy},
		})
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": middleware.GetRequestID(c),
		}).Error("Request failed with internal error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   CodeInternal,
			"message": "internal server error",
		})
	}
	_ = c.Error(err)
}

// respondBindError reports a malformed or incomplete request body
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   CodeValidation,
		"message": "invalid request: " + err.Error(),
	})
}

// actorFromContext builds the caller from the auth middleware's user context
// and the request metadata. It writes a 401 and returns false when the
// request is not authenticated.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   CodeUnauthorized,
			"message": "user not authenticated",
		})
		return models.Actor{}, false
	}

	return models.Actor{
		UserID:    userCtx.UserID,
		Role:      userCtx.Role(),
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}, true
}

// uuidParam parses a path parameter, writing a 400 when it is not a UUID
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   CodeValidation,
			"message": "invalid " + name,
			"details": gin.H{"field": name},
		})
		return uuid.Nil, false
	}
	return id, true
}

// parseBodyUUID parses an id taken from a request body. Binding already
// checks the format, so this only fails for hand-built requests.
func parseBodyUUID(c *gin.Context, field, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   CodeValidation,
			"message": "invalid " + field,
			"details": gin.H{"field": field},
		})
		return uuid.Nil, false
	}
	return id, true
}
