package database

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// PaymentRepository handles payments and refunds
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, order_id, amount, currency, method, status, processor_reference,
	failure_reason, recorded_by, refunded_at, created_at, updated_at`

const refundColumns = `id, payment_id, booking_id, amount, reason, created_by, created_at`

// ============================================================================
// LOOKUPS
// ============================================================================

// GetByID retrieves a payment. Returns (nil, nil) when it does not exist.
func (r *PaymentRepository) GetByID(paymentID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Get(&p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// GetCompletedForOrder returns the completed payment of an order, or
// (nil, nil) when the order is unpaid
func (r *PaymentRepository) GetCompletedForOrder(orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Get(&p, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1 AND status = 'COMPLETED'
		ORDER BY created_at DESC
		LIMIT 1`, orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completed payment: %w", err)
	}
	return &p, nil
}

// ListForOrder returns every payment attempt of an order
func (r *PaymentRepository) ListForOrder(orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Select(&payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// ActiveFareTotal sums the fares of the PENDING and BOOKED bookings of an order
func (r *PaymentRepository) ActiveFareTotal(orderID uuid.UUID) (float64, error) {
	return activeFareTotal(r.db, orderID)
}

func activeFareTotal(q sqlx.Queryer, orderID uuid.UUID) (float64, error) {
	var total float64
	err := sqlx.Get(q, &total, `
		SELECT COALESCE(SUM(fare), 0)
		FROM bookings
		WHERE order_id = $1 AND status IN ('PENDING', 'BOOKED')`, orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to total active fares: %w", err)
	}
	return total, nil
}

// ============================================================================
// PAYMENT RECORDING
// ============================================================================

// Record stores a payment outcome for an order. The order row is locked so a
// second completion cannot race the first. A completed payment promotes the
// order's PENDING bookings to BOOKED and confirms the order. Returns the number
// of bookings promoted.
func (r *PaymentRepository) Record(payment *models.Payment, now time.Time) (int, error) {
	payment.ID = uuid.New()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	var promoted int
	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		var orderStatus models.OrderStatus
		err := tx.Get(&orderStatus, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, payment.OrderID)
		if err == sql.ErrNoRows {
			return domain.NotFoundError{Resource: "order", ID: payment.OrderID.String()}
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if orderStatus == models.OrderStatusCancelled {
			return domain.ValidationError{Field: "order", Msg: "order is cancelled"}
		}

		if payment.Status == models.PaymentStatusCompleted {
			var paid bool
			err = tx.Get(&paid, `
				SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'COMPLETED')`, payment.OrderID)
			if err != nil {
				return fmt.Errorf("failed to check existing payment: %w", err)
			}
			if paid {
				return domain.ValidationError{Field: "order", Msg: "order is already paid"}
			}

			total, err := activeFareTotal(tx, payment.OrderID)
			if err != nil {
				return err
			}
			if !models.AmountsEqual(total, payment.Amount) {
				return domain.ValidationError{
					Field: "amount",
					Msg:   fmt.Sprintf("amount %.2f does not match booked fares %.2f", payment.Amount, total),
				}
			}
		}

		_, err = tx.NamedExec(`
			INSERT INTO payments (`+paymentColumns+`)
			VALUES (:id, :order_id, :amount, :currency, :method, :status, :processor_reference,
				:failure_reason, :recorded_by, :refunded_at, :created_at, :updated_at)`, payment)
		if err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		if payment.Status != models.PaymentStatusCompleted {
			return nil
		}

		result, err := tx.Exec(`
			UPDATE bookings SET status = 'BOOKED', updated_at = $2
			WHERE order_id = $1 AND status = 'PENDING'`, payment.OrderID, now)
		if err != nil {
			return fmt.Errorf("failed to promote bookings: %w", err)
		}
		promoted = rowsAffected(result)

		_, err = tx.Exec(`
			UPDATE orders SET status = 'CONFIRMED', payment_method = $2, updated_at = $3
			WHERE id = $1`, payment.OrderID, payment.Method, now)
		if err != nil {
			return fmt.Errorf("failed to confirm order: %w", err)
		}
		return nil
	})
	return promoted, err
}

// ============================================================================
// REFUNDS
// ============================================================================

// Refund refunds a completed payment in full, less partial refunds already
// made, and cancels the order's remaining active bookings. Only COMPLETED
// payments qualify, so a replay after success is rejected.
func (r *PaymentRepository) Refund(paymentID uuid.UUID, reason string, actorID *uuid.UUID, now time.Time) (*models.RefundResult, error) {
	var out models.RefundResult

	err := WithTx(r.db, func(tx *sqlx.Tx) error {
		var orderID uuid.UUID
		err := tx.Get(&orderID, `SELECT order_id FROM payments WHERE id = $1`, paymentID)
		if err == sql.ErrNoRows {
			return domain.NotFoundError{Resource: "payment", ID: paymentID.String()}
		}
		if err != nil {
			return fmt.Errorf("failed to find payment order: %w", err)
		}
		if _, err := lockOrder(tx, orderID); err != nil {
			return err
		}

		var p models.Payment
		err = tx.Get(&p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID)
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		if p.Status != models.PaymentStatusCompleted {
			return domain.ValidationError{
				Field: "status",
				Msg:   fmt.Sprintf("only completed payments can be refunded, payment is %s", p.Status),
			}
		}

		amount, err := refundableRemainder(tx, &p)
		if err != nil {
			return err
		}
		if err := markRefunded(tx, &p, now); err != nil {
			return err
		}

		refund := &models.Refund{
			ID:        uuid.New(),
			PaymentID: paymentID,
			Amount:    amount,
			Reason:    reason,
			CreatedBy: actorID,
			CreatedAt: now,
		}
		if _, err := insertRefund(tx, refund); err != nil {
			return err
		}

		cancelled, err := cancelActiveBookings(tx, p.OrderID, reason, actorID, now)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE orders SET status = 'CANCELLED', updated_at = $2 WHERE id = $1`, p.OrderID, now)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}

		released := make([]string, 0, len(cancelled))
		for _, b := range cancelled {
			released = append(released, b.SeatNumber)
		}

		out = models.RefundResult{Payment: &p, Refund: refund, ReleasedSeats: released}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// REFUND HELPERS (shared with booking cancellation)
// ============================================================================

// refundCancelledBooking records the money owed back for a booking cancelled
// in tx. Unpaid orders owe nothing. The refund is the fare share at
// terms.RefundPercent, capped at what is left on the payment. A cancellation
// that empties the order closes the payment as REFUNDED; with
// SettleRemainder it also pays back everything left on it.
func refundCancelledBooking(tx *sqlx.Tx, b *models.Booking, orderCancelled bool, terms CancelTerms, now time.Time) (*models.Payment, *models.Refund, error) {
	var p models.Payment
	err := tx.Get(&p, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1 AND status = 'COMPLETED'
		FOR UPDATE`, b.OrderID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	remainder, err := refundableRemainder(tx, &p)
	if err != nil {
		return nil, nil, err
	}
	amount := models.RefundShare(b.Fare, terms.RefundPercent)
	if orderCancelled && terms.SettleRemainder {
		amount = remainder
	}
	amount = math.Min(amount, remainder)

	if orderCancelled {
		if err := markRefunded(tx, &p, now); err != nil {
			return nil, nil, err
		}
	}
	if amount <= 0 {
		return &p, nil, nil
	}

	refund := &models.Refund{
		ID:        uuid.New(),
		PaymentID: p.ID,
		BookingID: &b.ID,
		Amount:    amount,
		Reason:    terms.Reason,
		CreatedBy: terms.ActorID,
		CreatedAt: now,
	}
	created, err := insertRefund(tx, refund)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return &p, nil, nil
	}
	return &p, refund, nil
}

// refundableRemainder is what is left of a payment after earlier refunds
func refundableRemainder(tx *sqlx.Tx, p *models.Payment) (float64, error) {
	var alreadyRefunded float64
	err := tx.Get(&alreadyRefunded, `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = $1`, p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to total refunds: %w", err)
	}
	return math.Max(p.Amount-alreadyRefunded, 0), nil
}

// markRefunded moves a locked payment to REFUNDED
func markRefunded(tx *sqlx.Tx, p *models.Payment, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE payments SET status = 'REFUNDED', refunded_at = $2, updated_at = $2
		WHERE id = $1`, p.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	p.Status = models.PaymentStatusRefunded
	p.RefundedAt = &now
	p.UpdatedAt = now
	return nil
}

// insertRefund writes a refund row. Rows for one booking are unique per
// payment; created is false when one already exists.
func insertRefund(tx *sqlx.Tx, refund *models.Refund) (created bool, err error) {
	rows, err := tx.NamedQuery(`
		INSERT INTO refunds (`+refundColumns+`)
		VALUES (:id, :payment_id, :booking_id, :amount, :reason, :created_by, :created_at)
		ON CONFLICT (payment_id, booking_id) DO NOTHING
		RETURNING id`, refund)
	if err != nil {
		return false, fmt.Errorf("failed to create refund: %w", err)
	}
	defer rows.Close()

	created = rows.Next()
	return created, rows.Err()
}

// ListRefunds returns the refunds made against a payment
func (r *PaymentRepository) ListRefunds(paymentID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.Select(&refunds, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE payment_id = $1
		ORDER BY created_at`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}
