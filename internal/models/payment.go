package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is how an order was paid
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodESewa      PaymentMethod = "ESEWA"
	PaymentMethodKhalti     PaymentMethod = "KHALTI"
	PaymentMethodIPSConnect PaymentMethod = "IPS_CONNECT"
	PaymentMethodBank       PaymentMethod = "BANK"
	PaymentMethodManual     PaymentMethod = "MANUAL"
)

// IsValid returns true for the supported methods
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodESewa, PaymentMethodKhalti,
		PaymentMethodIPSConnect, PaymentMethodBank, PaymentMethodManual:
		return true
	}
	return false
}

// IsOnlineGateway reports whether the method settles through an online gateway
func (m PaymentMethod) IsOnlineGateway() bool {
	return m == PaymentMethodESewa || m == PaymentMethodKhalti || m == PaymentMethodIPSConnect
}

// PaymentStatus is the state of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment settles the active bookings of an order
type Payment struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	OrderID            uuid.UUID     `json:"order_id" db:"order_id"`
	Amount             float64       `json:"amount" db:"amount"`
	Currency           string        `json:"currency" db:"currency"`
	Method             PaymentMethod `json:"method" db:"method"`
	Status             PaymentStatus `json:"status" db:"status"`
	ProcessorReference *string       `json:"processor_reference,omitempty" db:"processor_reference"`
	FailureReason      *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	RecordedBy         *uuid.UUID    `json:"recorded_by,omitempty" db:"recorded_by"`
	RefundedAt         *time.Time    `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// Refund records money returned against a completed payment. BookingID is set
// for a partial refund of one cancelled seat.
type Refund struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	PaymentID uuid.UUID  `json:"payment_id" db:"payment_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	Amount    float64    `json:"amount" db:"amount"`
	Reason    string     `json:"reason" db:"reason"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ProcessPaymentRequest is the body of a payment call
type ProcessPaymentRequest struct {
	BookingID string        `json:"booking_id" binding:"required,uuid"`
	Amount    float64       `json:"amount" binding:"required,gt=0"`
	Method    PaymentMethod `json:"method" binding:"required"`
}

// RefundPaymentRequest is the body of a refund call
type RefundPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RefundResult describes a completed refund
type RefundResult struct {
	Payment       *Payment `json:"payment"`
	Refund        *Refund  `json:"refund"`
	ReleasedSeats []string `json:"released_seats"`
}

// ToPaisa converts a rupee amount to integer paisa for exact comparison
func ToPaisa(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// AmountsEqual compares two rupee amounts to the paisa
func AmountsEqual(a, b float64) bool {
	return ToPaisa(a) == ToPaisa(b)
}

// RefundShare scales fare by percent, rounded to the paisa
func RefundShare(fare, percent float64) float64 {
	return math.Round(fare*percent) / 100
}
