package models

import (
	"time"

	"github.com/google/uuid"
)

// CleanupResult summarizes one orphan cleanup run
type CleanupResult struct {
	Scanned      int       `json:"scanned"`
	Cancelled    int       `json:"cancelled"`
	Skipped      int       `json:"skipped"` // Paid or moved on since listing
	Failed       int       `json:"failed"`
	HoldsDeleted int       `json:"holds_deleted"`
	RanAt        time.Time `json:"ran_at"`
}

// AutoCompleteResult summarizes one auto-complete run
type AutoCompleteResult struct {
	Scanned   int       `json:"scanned"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	RanAt     time.Time `json:"ran_at"`
}

// SeatResetResult describes a forced seat reset
type SeatResetResult struct {
	ScheduleID    uuid.UUID `json:"schedule_id"`
	SeatsReset    int       `json:"seats_reset"`
	HoldsReleased int       `json:"holds_released"`
}
