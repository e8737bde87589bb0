package database

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// ============================================================================
// SEAT CLAIM CHECKS (shared by holds and bookings)
// ============================================================================

// seatClaim is the outcome of checking seats inside a transaction
type seatClaim struct {
	seats         map[string]models.Seat
	consumedHolds []uuid.UUID
}

// lockSeats locks the requested seat rows of a schedule in seat_number order.
// Every claim path locks seats first, so conflicting transactions serialize
// on the rows and never deadlock.
func lockSeats(tx *sqlx.Tx, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	query, args, err := sqlx.In(`
		SELECT id, schedule_id, seat_number, row_number, position, is_booked, created_at, updated_at
		FROM seats
		WHERE schedule_id = ? AND seat_number IN (?)
		ORDER BY seat_number
		FOR UPDATE`, scheduleID, seatNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to build seat lock query: %w", err)
	}

	var seats []models.Seat
	if err := tx.Select(&seats, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to lock seats: %w", err)
	}
	return seats, nil
}

// activeHoldsOnSeats returns holds still protecting any of the seats at now.
// Holds past expires_at are ignored here whether or not a sweep removed them.
func activeHoldsOnSeats(tx *sqlx.Tx, scheduleID uuid.UUID, seatNumbers []string, now time.Time) ([]models.SeatHold, error) {
	query := `
		SELECT id, schedule_id, user_id, seat_numbers, status, expires_at, consumed_at, created_at
		FROM seat_holds
		WHERE schedule_id = $1
		  AND status = 'active'
		  AND expires_at > $2
		  AND seat_numbers && $3
		FOR UPDATE`

	var holds []models.SeatHold
	if err := tx.Select(&holds, query, scheduleID, now, pq.Array(seatNumbers)); err != nil {
		return nil, fmt.Errorf("failed to load active holds: %w", err)
	}
	return holds, nil
}

// claimSeats locks and validates seats. Holds whose owner is in claimants
// (or whose id is ownHold) do not conflict and are returned for consumption.
func claimSeats(
	tx *sqlx.Tx,
	scheduleID uuid.UUID,
	seatNumbers []string,
	now time.Time,
	ownHold *uuid.UUID,
	claimants []uuid.UUID,
) (*seatClaim, error) {
	seats, err := lockSeats(tx, scheduleID, seatNumbers)
	if err != nil {
		return nil, err
	}

	claim := &seatClaim{seats: make(map[string]models.Seat, len(seats))}
	for _, s := range seats {
		claim.seats[s.SeatNumber] = s
	}

	for _, label := range seatNumbers {
		if _, ok := claim.seats[label]; !ok {
			return nil, domain.NotFoundError{Resource: "seat", ID: label}
		}
	}

	conflicts := make(map[string]struct{})
	for _, s := range seats {
		if s.IsBooked {
			conflicts[s.SeatNumber] = struct{}{}
		}
	}

	holds, err := activeHoldsOnSeats(tx, scheduleID, seatNumbers, now)
	if err != nil {
		return nil, err
	}

	for i := range holds {
		h := &holds[i]
		if isOwnHold(h, ownHold, claimants) {
			claim.consumedHolds = append(claim.consumedHolds, h.ID)
			continue
		}
		for _, label := range seatNumbers {
			if h.SeatNumbers.Contains(label) {
				conflicts[label] = struct{}{}
			}
		}
	}

	if len(conflicts) > 0 {
		labels := make([]string, 0, len(conflicts))
		for label := range conflicts {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		return nil, domain.SeatUnavailableError{ScheduleID: scheduleID.String(), Seats: labels}
	}

	return claim, nil
}

func isOwnHold(h *models.SeatHold, ownHold *uuid.UUID, claimants []uuid.UUID) bool {
	if ownHold != nil && h.ID == *ownHold {
		return true
	}
	for _, id := range claimants {
		if h.IsOwnedBy(id) {
			return true
		}
	}
	return false
}

// releaseSeat clears is_booked for one seat row
func releaseSeat(tx *sqlx.Tx, seatID uuid.UUID, now time.Time) error {
	_, err := tx.Exec(`UPDATE seats SET is_booked = false, updated_at = $2 WHERE id = $1`, seatID, now)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	return nil
}

// recalculateOrder sets the order total to the fares of its non-cancelled
// bookings and cancels the order once nothing active remains. Returns the new
// total and whether the order is now cancelled.
func recalculateOrder(tx *sqlx.Tx, orderID uuid.UUID, now time.Time) (float64, bool, error) {
	var totals struct {
		Total  float64 `db:"total"`
		Active int     `db:"active"`
	}
	err := tx.Get(&totals, `
		SELECT COALESCE(SUM(fare), 0) AS total,
		       COUNT(*) FILTER (WHERE status IN ('PENDING', 'BOOKED')) AS active
		FROM bookings
		WHERE order_id = $1 AND status <> 'CANCELLED'`, orderID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to total order: %w", err)
	}

	cancelled := totals.Active == 0
	if cancelled {
		_, err = tx.Exec(`
			UPDATE orders SET total_amount = $2, status = 'CANCELLED', updated_at = $3
			WHERE id = $1`, orderID, totals.Total, now)
	} else {
		_, err = tx.Exec(`
			UPDATE orders SET total_amount = $2, updated_at = $3
			WHERE id = $1`, orderID, totals.Total, now)
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to update order total: %w", err)
	}

	return totals.Total, cancelled, nil
}

// cancelBookingRow cancels one locked booking and releases its seat
func cancelBookingRow(tx *sqlx.Tx, b *models.Booking, reason string, actorID *uuid.UUID, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE bookings
		SET status = 'CANCELLED', cancellation_reason = $2, cancelled_by = $3,
		    cancelled_at = $4, updated_at = $4
		WHERE id = $1`, b.ID, reason, actorID, now)
	if err != nil {
		return fmt.Errorf("failed to cancel booking %s: %w", b.ID, err)
	}

	if err := releaseSeat(tx, b.SeatID, now); err != nil {
		return err
	}

	b.Status = models.BookingStatusCancelled
	b.CancellationReason = &reason
	b.CancelledBy = actorID
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}
