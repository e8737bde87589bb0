package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/database"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/nipeshtamang/ebus-sub002/internal/utils"
	"github.com/sirupsen/logrus"
)

// Audit actions
const (
	AuditScheduleCreate      = "schedule_create"
	AuditHoldReserve         = "hold_reserve"
	AuditHoldRelease         = "hold_release"
	AuditBookingCreate       = "booking_create"
	AuditBookingCreateAdmin  = "booking_create_admin"
	AuditOrderCompensate     = "order_compensate"
	AuditBookingCancel       = "booking_cancel"
	AuditBookingAdminCancel  = "booking_admin_cancel"
	AuditBookingSeatRemove   = "booking_seat_remove"
	AuditBookingStatusUpdate = "booking_status_update"
	AuditPaymentProcess      = "payment_process"
	AuditPaymentRefund       = "payment_refund"
	AuditSeatsReset          = "seats_reset"
	AuditOrphanCleanup       = "bookings_orphan_cleanup"
	AuditAutoComplete        = "bookings_auto_complete"
)

// AuditLogger records one audit entry per mutation
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// AuditEvent is one row of the audit trail
type AuditEvent struct {
	UserID     *uuid.UUID             // nil for background jobs
	Action     string                 // One of the Audit* actions
	EntityType string                 // schedule, hold, order, booking, payment
	EntityID   *uuid.UUID             // ID of the affected entity (can be nil)
	IPAddress  string                 // Client IP address
	UserAgent  string                 // Client user agent
	Details    map[string]interface{} // Stored as JSONB
}

// NewAuditEvent fills the actor fields of an event
func NewAuditEvent(actor models.Actor, action, entityType string, entityID *uuid.UUID, details map[string]interface{}) AuditEvent {
	if details == nil {
		details = make(map[string]interface{})
	}
	if actor.Role != "" {
		details["actor_role"] = actor.Role
	}
	if actor.UserAgent != "" {
		details["device_info"] = utils.ParseUserAgent(actor.UserAgent)
	}

	return AuditEvent{
		UserID:     actor.IDPtr(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Details:    details,
	}
}

// AuditService writes audit entries to the audit_logs table
type AuditService struct {
	db    database.DB
	clock clock.Clock
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB, clk clock.Clock) *AuditService {
	return &AuditService{
		db:    db,
		clock: clk,
	}
}

// Log inserts one audit entry
func (s *AuditService) Log(ctx context.Context, event AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx,
		query,
		event.UserID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.IPAddress,
		event.UserAgent,
		details,
		s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// NoopAuditLogger drops entries; used when audit logging is disabled
type NoopAuditLogger struct{}

func (NoopAuditLogger) Log(context.Context, AuditEvent) error { return nil }

// safeAudit writes an audit entry without failing the caller
func safeAudit(ctx context.Context, audit AuditLogger, logger *logrus.Logger, event AuditEvent) {
	if audit == nil {
		return
	}

	// The request context may already be cancelled once the response is out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := audit.Log(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action":      event.Action,
			"entity_type": event.EntityType,
		}).Error("AUDIT ERROR")
	}
}
