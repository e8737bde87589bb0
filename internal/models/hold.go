package models

import (
	"time"

	"github.com/google/uuid"
)

// HoldStatus is the lifecycle state of a seat hold
type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"   // Seats exclusively claimed until expires_at
	HoldStatusExpired  HoldStatus = "expired"  // Wall clock passed expires_at
	HoldStatusConsumed HoldStatus = "consumed" // Converted into bookings
	HoldStatusReleased HoldStatus = "released" // Given up by owner or admin reset
)

// MinHoldDuration is the shortest hold a caller may request
const MinHoldDuration = 300 * time.Second

// SeatHold is a time-bound exclusive claim on seats of one schedule
type SeatHold struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	ScheduleID  uuid.UUID   `json:"schedule_id" db:"schedule_id"`
	UserID      *uuid.UUID  `json:"user_id,omitempty" db:"user_id"`
	SeatNumbers StringArray `json:"seat_numbers" db:"seat_numbers"`
	Status      HoldStatus  `json:"status" db:"status"`
	ExpiresAt   time.Time   `json:"expires_at" db:"expires_at"`
	ConsumedAt  *time.Time  `json:"consumed_at,omitempty" db:"consumed_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// State evaluates the stored status against the clock. An active hold whose
// expiry has passed is expired whether or not a sweep has touched the row.
func (h *SeatHold) State(now time.Time) HoldStatus {
	if h.Status == HoldStatusActive && !now.Before(h.ExpiresAt) {
		return HoldStatusExpired
	}
	return h.Status
}

// IsActive reports whether the hold still protects its seats at now
func (h *SeatHold) IsActive(now time.Time) bool {
	return h.State(now) == HoldStatusActive
}

// Covers reports whether every seat is part of the hold
func (h *SeatHold) Covers(seats []string) bool {
	for _, s := range seats {
		if !h.SeatNumbers.Contains(s) {
			return false
		}
	}
	return true
}

// IsOwnedBy reports whether the hold was taken by userID
func (h *SeatHold) IsOwnedBy(userID uuid.UUID) bool {
	return h.UserID != nil && *h.UserID == userID
}

// ReserveSeatsRequest asks for a hold on seats of one schedule
type ReserveSeatsRequest struct {
	ScheduleID   string   `json:"schedule_id" binding:"required,uuid"`
	SeatNumbers  []string `json:"seat_numbers" binding:"required,min=1,dive,required"`
	HoldDuration *int     `json:"hold_duration,omitempty"` // Seconds, at least 300
}

// HoldResponse is the hold descriptor returned to clients
type HoldResponse struct {
	HoldID      uuid.UUID  `json:"hold_id"`
	ScheduleID  uuid.UUID  `json:"schedule_id"`
	SeatNumbers []string   `json:"seat_numbers"`
	Status      HoldStatus `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	TTLSeconds  int        `json:"ttl_seconds"`
}

// NewHoldResponse builds the descriptor as seen at now
func NewHoldResponse(h *SeatHold, now time.Time) *HoldResponse {
	ttl := int(h.ExpiresAt.Sub(now).Seconds())
	if ttl < 0 || !h.IsActive(now) {
		ttl = 0
	}
	return &HoldResponse{
		HoldID:      h.ID,
		ScheduleID:  h.ScheduleID,
		SeatNumbers: h.SeatNumbers,
		Status:      h.State(now),
		ExpiresAt:   h.ExpiresAt,
		TTLSeconds:  ttl,
	}
}
