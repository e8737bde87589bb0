package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// ScheduleRepository handles schedules and their seat inventory
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ============================================================================
// SCHEDULE OPERATIONS
// ============================================================================

// CreateWithSeats inserts a schedule and all of its seats in one transaction
func (r *ScheduleRepository) CreateWithSeats(schedule *models.Schedule, specs []models.SeatSpec) ([]models.Seat, error) {
	now := schedule.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	schedule.ID = uuid.New()
	schedule.SeatCount = len(specs)
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	seats := make([]models.Seat, 0, len(specs))
	for _, spec := range specs {
		seats = append(seats, models.Seat{
			ID:         uuid.New(),
			ScheduleID: schedule.ID,
			SeatNumber: spec.Label,
			RowNumber:  spec.Row,
			Position:   spec.Position,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExec(`
			INSERT INTO schedules (
				id, route_name, bus_number, layout_type, seat_count,
				departure_at, fare, is_return, created_at, updated_at
			) VALUES (
				:id, :route_name, :bus_number, :layout_type, :seat_count,
				:departure_at, :fare, :is_return, :created_at, :updated_at
			)`, schedule)
		if err != nil {
			return fmt.Errorf("failed to create schedule: %w", err)
		}

		if len(seats) == 0 {
			return nil
		}

		_, err = tx.NamedExec(`
			INSERT INTO seats (
				id, schedule_id, seat_number, row_number, position,
				is_booked, created_at, updated_at
			) VALUES (
				:id, :schedule_id, :seat_number, :row_number, :position,
				:is_booked, :created_at, :updated_at
			)`, seats)
		if err != nil {
			return fmt.Errorf("failed to create seats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return seats, nil
}

// GetByID retrieves a schedule. Returns (nil, nil) when it does not exist.
func (r *ScheduleRepository) GetByID(scheduleID uuid.UUID) (*models.Schedule, error) {
	var schedule models.Schedule
	err := r.db.Get(&schedule, `
		SELECT id, route_name, bus_number, layout_type, seat_count,
		       departure_at, fare, is_return, created_at, updated_at
		FROM schedules
		WHERE id = $1`, scheduleID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// ============================================================================
// SEAT INVENTORY
// ============================================================================

// ListSeats returns every seat of a schedule in grid order
func (r *ScheduleRepository) ListSeats(scheduleID uuid.UUID) ([]models.Seat, error) {
	var seats []models.Seat
	err := r.db.Select(&seats, `
		SELECT id, schedule_id, seat_number, row_number, position, is_booked, created_at, updated_at
		FROM seats
		WHERE schedule_id = $1
		ORDER BY row_number, position`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	return seats, nil
}

// HeldSeatNumbers returns the seats covered by an unexpired active hold at now
func (r *ScheduleRepository) HeldSeatNumbers(scheduleID uuid.UUID, now time.Time) ([]string, error) {
	var held []string
	err := r.db.Select(&held, `
		SELECT DISTINCT unnest(seat_numbers)
		FROM seat_holds
		WHERE schedule_id = $1 AND status = 'active' AND expires_at > $2`, scheduleID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list held seats: %w", err)
	}
	return held, nil
}

// ResetSeats marks every seat of the schedule as free and releases its active
// holds. Bookings are left untouched.
func (r *ScheduleRepository) ResetSeats(scheduleID uuid.UUID, now time.Time) (seatsReset int, holdsReleased int, err error) {
	err = WithTx(r.db, func(tx *sqlx.Tx) error {
		result, err := tx.Exec(`
			UPDATE seats SET is_booked = false, updated_at = $2
			WHERE schedule_id = $1 AND is_booked = true`, scheduleID, now)
		if err != nil {
			return fmt.Errorf("failed to reset seats: %w", err)
		}
		seatsReset = rowsAffected(result)

		result, err = tx.Exec(`
			UPDATE seat_holds SET status = 'released'
			WHERE schedule_id = $1 AND status = 'active'`, scheduleID)
		if err != nil {
			return fmt.Errorf("failed to release holds: %w", err)
		}
		holdsReleased = rowsAffected(result)
		return nil
	})
	return seatsReset, holdsReleased, err
}
