package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// BookingRepository handles orders, bookings and tickets
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const orderColumns = `id, user_id, booker_name, booker_phone, booker_email, total_amount, currency,
	status, payment_method, created_by_admin_id, is_round_trip, created_at, updated_at`

const bookingColumns = `id, order_id, schedule_id, seat_id, seat_number, leg,
	passenger_name, passenger_phone, passenger_email, passenger_id_number, passenger_age, passenger_gender,
	fare, status, cancellation_reason, cancelled_by, cancelled_at, completed_at, created_at, updated_at`

// LegClaim is one leg to book atomically. Order is inserted when NewOrder is
// set, otherwise the leg is attached to the existing order.
type LegClaim struct {
	Order      *models.Order
	NewOrder   bool
	Schedule   *models.Schedule
	Leg        models.Leg
	Passengers []models.PassengerInput
	HoldID     *uuid.UUID
	Claimants  []uuid.UUID
	Status     models.BookingStatus
}

// CancelTerms says who cancels a booking and how much of its fare goes back
// when the order is paid
type CancelTerms struct {
	Reason        string
	ActorID       *uuid.UUID
	RefundPercent float64
	// SettleRemainder refunds everything left on the payment, instead of the
	// fare share, when the cancellation empties the order
	SettleRemainder bool
}

// BookingCancellation describes a committed single booking cancellation.
// Payment and Refund are set when the order was paid and money is owed back;
// the refund row is committed with the cancellation.
type BookingCancellation struct {
	Booking        *models.Booking
	OrderTotal     float64
	OrderCancelled bool
	Payment        *models.Payment
	Refund         *models.Refund
}

// ============================================================================
// BOOKING CREATION
// ============================================================================

// CreateLeg books every passenger seat of one leg in a single transaction:
// seats are locked and checked, caller holds consumed, bookings and seat flags
// written and one ticket issued. Any failure leaves nothing behind.
func (r *BookingRepository) CreateLeg(claim *LegClaim, now time.Time) (*models.LegResult, error) {
	seatNumbers := make([]string, 0, len(claim.Passengers))
	for _, p := range claim.Passengers {
		seatNumbers = append(seatNumbers, p.SeatNumber)
	}
	subtotal := claim.Schedule.Fare * float64(len(claim.Passengers))

	result := &models.LegResult{Leg: claim.Leg, Subtotal: subtotal}

	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		seatClaim, err := claimSeats(tx, claim.Schedule.ID, seatNumbers, now, claim.HoldID, claim.Claimants)
		if err != nil {
			return err
		}

		// 1. Order
		if claim.NewOrder {
			claim.Order.ID = uuid.New()
			claim.Order.TotalAmount = subtotal
			claim.Order.CreatedAt = now
			claim.Order.UpdatedAt = now
			_, err = tx.NamedExec(`
				INSERT INTO orders (`+orderColumns+`)
				VALUES (:id, :user_id, :booker_name, :booker_phone, :booker_email, :total_amount, :currency,
					:status, :payment_method, :created_by_admin_id, :is_round_trip, :created_at, :updated_at)`, claim.Order)
			if err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}
		} else {
			status, err := lockOrder(tx, claim.Order.ID)
			if err != nil {
				return err
			}
			if status == models.OrderStatusCancelled {
				return domain.ValidationError{Field: "order", Msg: "order is cancelled"}
			}
			_, err = tx.Exec(`
				UPDATE orders SET total_amount = total_amount + $2, updated_at = $3
				WHERE id = $1`, claim.Order.ID, subtotal, now)
			if err != nil {
				return fmt.Errorf("failed to update order total: %w", err)
			}
			claim.Order.TotalAmount += subtotal
			claim.Order.UpdatedAt = now
		}

		// 2. One booking per passenger
		bookings := make([]models.Booking, 0, len(claim.Passengers))
		seatIDs := make([]uuid.UUID, 0, len(claim.Passengers))
		for _, p := range claim.Passengers {
			seat := seatClaim.seats[p.SeatNumber]
			bookings = append(bookings, models.Booking{
				ID:                uuid.New(),
				OrderID:           claim.Order.ID,
				ScheduleID:        claim.Schedule.ID,
				SeatID:            seat.ID,
				SeatNumber:        p.SeatNumber,
				Leg:               claim.Leg,
				PassengerName:     p.PassengerName,
				PassengerPhone:    p.PassengerPhone,
				PassengerEmail:    p.PassengerEmail,
				PassengerIDNumber: p.PassengerIDNumber,
				PassengerAge:      p.PassengerAge,
				PassengerGender:   p.PassengerGender,
				Fare:              claim.Schedule.Fare,
				Status:            claim.Status,
				CreatedAt:         now,
				UpdatedAt:         now,
			})
			seatIDs = append(seatIDs, seat.ID)
		}

		_, err = tx.NamedExec(`
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES (:id, :order_id, :schedule_id, :seat_id, :seat_number, :leg,
				:passenger_name, :passenger_phone, :passenger_email, :passenger_id_number, :passenger_age, :passenger_gender,
				:fare, :status, :cancellation_reason, :cancelled_by, :cancelled_at, :completed_at, :created_at, :updated_at)`, bookings)
		if isUniqueViolation(err, liveSeatIndex) {
			// a live booking still sits on a seat whose flag was reset
			return domain.SeatUnavailableError{ScheduleID: claim.Schedule.ID.String(), Seats: seatNumbers}
		}
		if err != nil {
			return fmt.Errorf("failed to create bookings: %w", err)
		}

		// 3. Seats
		query, args, err := sqlx.In(`UPDATE seats SET is_booked = true, updated_at = ? WHERE id IN (?)`, now, seatIDs)
		if err != nil {
			return fmt.Errorf("failed to build seat update: %w", err)
		}
		if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to mark seats booked: %w", err)
		}

		// 4. Holds turned into bookings
		if len(seatClaim.consumedHolds) > 0 {
			_, err = tx.Exec(`
				UPDATE seat_holds SET status = 'consumed', consumed_at = $2
				WHERE id = ANY($1::uuid[]) AND status = 'active'`,
				pq.Array(uuidStrings(seatClaim.consumedHolds)), now)
			if err != nil {
				return fmt.Errorf("failed to consume holds: %w", err)
			}
		}

		// 5. Ticket
		ticketNumber, err := generateTicketNumber(tx, now)
		if err != nil {
			return err
		}
		ticket := &models.Ticket{
			ID:           uuid.New(),
			OrderID:      claim.Order.ID,
			Leg:          claim.Leg,
			TicketNumber: ticketNumber,
			QRPayload:    models.EncodeQRPayload(ticketNumber, claim.Order.ID),
			IssuedAt:     now,
		}
		_, err = tx.NamedExec(`
			INSERT INTO tickets (id, order_id, leg, ticket_number, qr_payload, issued_at)
			VALUES (:id, :order_id, :leg, :ticket_number, :qr_payload, :issued_at)`, ticket)
		if err != nil {
			return fmt.Errorf("failed to issue ticket: %w", err)
		}

		result.Bookings = bookings
		result.Ticket = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// generateTicketNumber returns a ticket number unique among issued tickets.
// Format: TKT-YYYYMMDD-XXXXXXXX (8 hex chars)
func generateTicketNumber(q sqlx.Queryer, now time.Time) (string, error) {
	day := now.Format("20060102")

	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		candidate := fmt.Sprintf("TKT-%s-%s", day, strings.ToUpper(hex.EncodeToString(randomBytes)))

		var count int
		if err := sqlx.Get(q, &count, `SELECT COUNT(*) FROM tickets WHERE ticket_number = $1`, candidate); err != nil {
			return "", fmt.Errorf("failed to check ticket number uniqueness: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique ticket number after 10 attempts")
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// ============================================================================
// LOOKUPS
// ============================================================================

// GetByID retrieves a booking with its departure time and order owner.
// Returns (nil, nil) when it does not exist.
func (r *BookingRepository) GetByID(bookingID uuid.UUID) (*models.BookingWithSchedule, error) {
	var b models.BookingWithSchedule
	err := r.db.Get(&b, `
		SELECT b.id, b.order_id, b.schedule_id, b.seat_id, b.seat_number, b.leg,
		       b.passenger_name, b.passenger_phone, b.passenger_email, b.passenger_id_number,
		       b.passenger_age, b.passenger_gender, b.fare, b.status, b.cancellation_reason,
		       b.cancelled_by, b.cancelled_at, b.completed_at, b.created_at, b.updated_at,
		       s.departure_at, o.user_id AS order_user_id
		FROM bookings b
		JOIN schedules s ON s.id = b.schedule_id
		JOIN orders o ON o.id = b.order_id
		WHERE b.id = $1`, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// GetOrder retrieves an order. Returns (nil, nil) when it does not exist.
func (r *BookingRepository) GetOrder(orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.Get(&order, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// ListOrderBookings returns all bookings of an order, cancelled ones included
func (r *BookingRepository) ListOrderBookings(orderID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.Select(&bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE order_id = $1
		ORDER BY leg, seat_number`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order bookings: %w", err)
	}
	return bookings, nil
}

// ListOrderTickets returns the tickets issued for an order
func (r *BookingRepository) ListOrderTickets(orderID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Select(&tickets, `
		SELECT id, order_id, leg, ticket_number, qr_payload, issued_at
		FROM tickets
		WHERE order_id = $1
		ORDER BY issued_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// FindActiveBySeat finds the PENDING or BOOKED booking of an order on a seat.
// Returns (nil, nil) when there is none.
func (r *BookingRepository) FindActiveBySeat(orderID, scheduleID uuid.UUID, seatNumber string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.Get(&b, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE order_id = $1 AND schedule_id = $2 AND seat_number = $3
		  AND status IN ('PENDING', 'BOOKED')`, orderID, scheduleID, seatNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking for seat: %w", err)
	}
	return &b, nil
}

// ============================================================================
// CANCELLATION
// ============================================================================

// lockOrder locks an order row and returns its status
func lockOrder(tx *sqlx.Tx, orderID uuid.UUID) (models.OrderStatus, error) {
	var status models.OrderStatus
	err := tx.Get(&status, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	if err == sql.ErrNoRows {
		return "", domain.NotFoundError{Resource: "order", ID: orderID.String()}
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock order: %w", err)
	}
	return status, nil
}

// lockBookingAndOrder locks a booking's order and then the booking. Every
// path that changes an order's bookings takes the order lock first, so
// concurrent cancellations on one order see each other's result.
func lockBookingAndOrder(tx *sqlx.Tx, bookingID uuid.UUID) (*models.Booking, error) {
	var orderID uuid.UUID
	err := tx.Get(&orderID, `SELECT order_id FROM bookings WHERE id = $1`, bookingID)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking order: %w", err)
	}
	if _, err := lockOrder(tx, orderID); err != nil {
		return nil, err
	}
	return lockBooking(tx, bookingID)
}

// lockBooking locks one booking row for update
func lockBooking(tx *sqlx.Tx, bookingID uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := tx.Get(&b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &b, nil
}

// cancelActiveBookings cancels every PENDING or BOOKED booking of an order,
// releases their seats and recalculates the order
func cancelActiveBookings(tx *sqlx.Tx, orderID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) ([]models.Booking, error) {
	var active []models.Booking
	err := tx.Select(&active, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE order_id = $1 AND status IN ('PENDING', 'BOOKED')
		ORDER BY seat_number
		FOR UPDATE`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order bookings: %w", err)
	}

	for i := range active {
		if err := cancelBookingRow(tx, &active[i], reason, actorID, now); err != nil {
			return nil, err
		}
	}

	if _, _, err := recalculateOrder(tx, orderID, now); err != nil {
		return nil, err
	}
	return active, nil
}

// CancelBooking cancels one booking, releases its seat, recalculates the
// order and records the refund owed on a paid order, all in one transaction.
// A booking that is no longer PENDING or BOOKED is rejected, so a retry after
// success fails instead of repeating side effects.
func (r *BookingRepository) CancelBooking(bookingID uuid.UUID, terms CancelTerms, now time.Time) (*BookingCancellation, error) {
	var out BookingCancellation

	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		b, err := lockBookingAndOrder(tx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.HoldsSeat() {
			return domain.ValidationError{
				Field: "status",
				Msg:   fmt.Sprintf("booking is already %s", b.Status),
			}
		}

		if err := cancelBookingRow(tx, b, terms.Reason, terms.ActorID, now); err != nil {
			return err
		}

		total, cancelled, err := recalculateOrder(tx, b.OrderID, now)
		if err != nil {
			return err
		}

		payment, refund, err := refundCancelledBooking(tx, b, cancelled, terms, now)
		if err != nil {
			return err
		}

		out = BookingCancellation{
			Booking:        b,
			OrderTotal:     total,
			OrderCancelled: cancelled,
			Payment:        payment,
			Refund:         refund,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels every active booking of an order and cancels the order.
// Used to undo a committed leg when a later leg fails.
func (r *BookingRepository) CancelOrder(orderID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) ([]models.Booking, error) {
	var cancelled []models.Booking
	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		if _, err := lockOrder(tx, orderID); err != nil {
			return err
		}
		var err error
		cancelled, err = cancelActiveBookings(tx, orderID, reason, actorID, now)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE orders SET status = 'CANCELLED', updated_at = $2 WHERE id = $1`, orderID, now)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ============================================================================
// STATUS TRANSITIONS
// ============================================================================

// UpdateStatus moves a booking forward along PENDING -> BOOKED -> COMPLETED.
// The update is conditional on the current status; false means another
// writer moved the booking first.
func (r *BookingRepository) UpdateStatus(bookingID uuid.UUID, from, to models.BookingStatus, now time.Time) (bool, error) {
	var changed bool

	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		var (
			result sql.Result
			err    error
		)
		switch to {
		case models.BookingStatusCompleted:
			result, err = tx.Exec(`
				UPDATE bookings SET status = $3, completed_at = $4, updated_at = $4
				WHERE id = $1 AND status = $2`, bookingID, from, to, now)
		default:
			result, err = tx.Exec(`
				UPDATE bookings SET status = $3, updated_at = $4
				WHERE id = $1 AND status = $2`, bookingID, from, to, now)
		}
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}
		changed = rowsAffected(result) > 0

		if changed && to == models.BookingStatusBooked {
			_, err = tx.Exec(`
				UPDATE orders SET status = 'CONFIRMED', updated_at = $2
				WHERE id = (SELECT order_id FROM bookings WHERE id = $1) AND status = 'PENDING'`, bookingID, now)
			if err != nil {
				return fmt.Errorf("failed to confirm order: %w", err)
			}
		}
		return nil
	})
	return changed, err
}

// ============================================================================
// MAINTENANCE QUERIES
// ============================================================================

// ListOrphanedPending returns PENDING bookings created before cutoff whose
// order has no completed payment
func (r *BookingRepository) ListOrphanedPending(cutoff time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.Select(&bookings, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE b.status = 'PENDING'
		  AND b.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM payments p
			WHERE p.order_id = b.order_id AND p.status = 'COMPLETED'
		  )
		ORDER BY b.created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned bookings: %w", err)
	}
	return bookings, nil
}

// CancelOrphan cancels one orphaned PENDING booking. Returns false when the
// booking moved on or got paid since it was listed.
func (r *BookingRepository) CancelOrphan(bookingID uuid.UUID, reason string, now time.Time) (bool, error) {
	var cancelled bool

	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		b, err := lockBookingAndOrder(tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending {
			return nil
		}

		var paid bool
		err = tx.Get(&paid, `
			SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'COMPLETED')`, b.OrderID)
		if err != nil {
			return fmt.Errorf("failed to check payment: %w", err)
		}
		if paid {
			return nil
		}

		if err := cancelBookingRow(tx, b, reason, nil, now); err != nil {
			return err
		}
		if _, _, err := recalculateOrder(tx, b.OrderID, now); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// ListDueForCompletion returns ids of BOOKED bookings whose schedule departed
// before now
func (r *BookingRepository) ListDueForCompletion(now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Select(&ids, `
		SELECT b.id
		FROM bookings b
		JOIN schedules s ON s.id = b.schedule_id
		WHERE b.status = 'BOOKED' AND s.departure_at < $1
		ORDER BY s.departure_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings due for completion: %w", err)
	}
	return ids, nil
}

// MarkCompleted moves a BOOKED booking to COMPLETED. Returns false for any
// other status, so reruns and cancelled bookings are left alone.
func (r *BookingRepository) MarkCompleted(bookingID uuid.UUID, now time.Time) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE bookings SET status = 'COMPLETED', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'BOOKED'`, bookingID, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete booking: %w", err)
	}
	return rowsAffected(result) > 0, nil
}
