package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// HoldRepository handles seat hold database operations
type HoldRepository struct {
	db *sqlx.DB
}

// NewHoldRepository creates a new HoldRepository
func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

const holdColumns = `id, schedule_id, user_id, seat_numbers, status, expires_at, consumed_at, created_at`

// ============================================================================
// HOLD OPERATIONS
// ============================================================================

// Create claims seats for a new hold. Seats are locked, checked against
// bookings and unexpired holds, and the hold is inserted in one transaction.
// A conflict on any seat rejects the whole request.
func (r *HoldRepository) Create(hold *models.SeatHold, now time.Time) error {
	hold.ID = uuid.New()
	hold.Status = models.HoldStatusActive
	hold.CreatedAt = now

	return WithTx(r.db, func(tx *sqlx.Tx) error {
		if _, err := claimSeats(tx, hold.ScheduleID, hold.SeatNumbers, now, nil, nil); err != nil {
			return err
		}

		_, err := tx.NamedExec(`
			INSERT INTO seat_holds (`+holdColumns+`)
			VALUES (:id, :schedule_id, :user_id, :seat_numbers, :status, :expires_at, :consumed_at, :created_at)`, hold)
		if err != nil {
			return fmt.Errorf("failed to create hold: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a hold. Returns (nil, nil) when it does not exist.
func (r *HoldRepository) GetByID(holdID uuid.UUID) (*models.SeatHold, error) {
	var hold models.SeatHold
	err := r.db.Get(&hold, `SELECT `+holdColumns+` FROM seat_holds WHERE id = $1`, holdID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// Release gives up an active hold. Returns false when the hold was no longer
// active, which makes repeated releases harmless.
func (r *HoldRepository) Release(holdID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE seat_holds SET status = 'released'
		WHERE id = $1 AND status = 'active'`, holdID)
	if err != nil {
		return false, fmt.Errorf("failed to release hold: %w", err)
	}
	return rowsAffected(result) > 0, nil
}

// ============================================================================
// EXPIRY SWEEPS
// ============================================================================

// DeleteExpired removes active holds whose expiry passed before now, and
// consumed or released holds older than the same cut. Claims already ignore
// expired rows, so this only keeps the table small.
func (r *HoldRepository) DeleteExpired(now time.Time, limit int) (int, error) {
	result, err := r.db.Exec(`
		DELETE FROM seat_holds
		WHERE id IN (
			SELECT id FROM seat_holds
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired holds: %w", err)
	}
	return rowsAffected(result), nil
}
