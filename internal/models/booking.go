package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a single seat booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// validBookingTransitions defines the booking state machine
var validBookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusBooked, BookingStatusCancelled},
	BookingStatusBooked:    {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted: {},
	BookingStatusCancelled: {},
}

// IsValid returns true if the status is a recognized booking status
func (s BookingStatus) IsValid() bool {
	_, exists := validBookingTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validBookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status
func (s BookingStatus) IsTerminal() bool {
	allowed, exists := validBookingTransitions[s]
	if !exists {
		return true
	}
	return len(allowed) == 0
}

// HoldsSeat reports whether a booking in this status occupies its seat
func (s BookingStatus) HoldsSeat() bool {
	return s == BookingStatusPending || s == BookingStatusBooked
}

// ParseBookingStatus converts a string to a BookingStatus
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// Leg marks the half of a round trip a booking belongs to
type Leg string

const (
	LegOnward Leg = "onward"
	LegReturn Leg = "return"
)

// OrderStatus is the booker facing state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // Waiting for online payment
	OrderStatusConfirmed OrderStatus = "CONFIRMED" // Seats booked
	OrderStatusCancelled OrderStatus = "CANCELLED" // Nothing active left
)

// Order groups the bookings of one checkout, possibly across two legs
type Order struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	UserID           *uuid.UUID     `json:"user_id,omitempty" db:"user_id"`
	BookerName       string         `json:"booker_name" db:"booker_name"`
	BookerPhone      string         `json:"booker_phone" db:"booker_phone"`
	BookerEmail      *string        `json:"booker_email,omitempty" db:"booker_email"`
	TotalAmount      float64        `json:"total_amount" db:"total_amount"`
	Currency         string         `json:"currency" db:"currency"`
	Status           OrderStatus    `json:"status" db:"status"`
	PaymentMethod    *PaymentMethod `json:"payment_method,omitempty" db:"payment_method"`
	CreatedByAdminID *uuid.UUID     `json:"created_by_admin_id,omitempty" db:"created_by_admin_id"`
	IsRoundTrip      bool           `json:"is_round_trip" db:"is_round_trip"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOwnedBy reports whether userID placed the order
func (o *Order) IsOwnedBy(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}

// Booking is one passenger on one seat of one schedule
type Booking struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	OrderID            uuid.UUID     `json:"order_id" db:"order_id"`
	ScheduleID         uuid.UUID     `json:"schedule_id" db:"schedule_id"`
	SeatID             uuid.UUID     `json:"seat_id" db:"seat_id"`
	SeatNumber         string        `json:"seat_number" db:"seat_number"`
	Leg                Leg           `json:"leg" db:"leg"`
	PassengerName      string        `json:"passenger_name" db:"passenger_name"`
	PassengerPhone     string        `json:"passenger_phone" db:"passenger_phone"`
	PassengerEmail     *string       `json:"passenger_email,omitempty" db:"passenger_email"`
	PassengerIDNumber  *string       `json:"passenger_id_number,omitempty" db:"passenger_id_number"`
	PassengerAge       *int          `json:"passenger_age,omitempty" db:"passenger_age"`
	PassengerGender    *string       `json:"passenger_gender,omitempty" db:"passenger_gender"`
	Fare               float64       `json:"fare" db:"fare"`
	Status             BookingStatus `json:"status" db:"status"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy        *uuid.UUID    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// BookingWithSchedule joins a booking with the schedule fields cancellation
// and maintenance need
type BookingWithSchedule struct {
	Booking
	DepartureAt time.Time  `json:"departure_at" db:"departure_at"`
	OrderUserID *uuid.UUID `json:"order_user_id,omitempty" db:"order_user_id"`
}

// Ticket is the issued proof of booking for one leg of an order
type Ticket struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OrderID      uuid.UUID `json:"order_id" db:"order_id"`
	Leg          Leg       `json:"leg" db:"leg"`
	TicketNumber string    `json:"ticket_number" db:"ticket_number"`
	QRPayload    string    `json:"qr_payload" db:"qr_payload"`
	IssuedAt     time.Time `json:"issued_at" db:"issued_at"`
}

// QRPayload is the content encoded into the scannable ticket code
type QRPayload struct {
	TicketNumber string    `json:"ticket_number"`
	OrderID      uuid.UUID `json:"order_id"`
}

// EncodeQRPayload renders the payload for ticketNumber and orderID
func EncodeQRPayload(ticketNumber string, orderID uuid.UUID) string {
	data, _ := json.Marshal(QRPayload{TicketNumber: ticketNumber, OrderID: orderID})
	return string(data)
}

// DecodeQRPayload parses a scanned payload
func DecodeQRPayload(raw string) (*QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("invalid ticket payload: %w", err)
	}
	if p.TicketNumber == "" || p.OrderID == uuid.Nil {
		return nil, fmt.Errorf("invalid ticket payload: missing fields")
	}
	return &p, nil
}

// ============================================================================
// REQUEST/RESPONSE TYPES
// ============================================================================

// PassengerInput is one passenger and the seat requested for them
type PassengerInput struct {
	SeatNumber        string  `json:"seat_number" binding:"required"`
	PassengerName     string  `json:"passenger_name" binding:"required"`
	PassengerPhone    string  `json:"passenger_phone" binding:"required"`
	PassengerEmail    *string `json:"passenger_email,omitempty" binding:"omitempty,email"`
	PassengerIDNumber *string `json:"passenger_id_number,omitempty"`
	PassengerAge      *int    `json:"passenger_age,omitempty" binding:"omitempty,min=0,max=120"`
	PassengerGender   *string `json:"passenger_gender,omitempty" binding:"omitempty,oneof=male female other"`
}

// LegRequest is the seat selection for one schedule
type LegRequest struct {
	ScheduleID uuid.UUID        `json:"schedule_id"`
	HoldID     *uuid.UUID       `json:"hold_id,omitempty"`
	Passengers []PassengerInput `json:"passengers"`
}

// SeatNumbers lists the requested seats in passenger order
func (l *LegRequest) SeatNumbers() []string {
	seats := make([]string, 0, len(l.Passengers))
	for _, p := range l.Passengers {
		seats = append(seats, p.SeatNumber)
	}
	return seats
}

// BookerInfo is the contact that owns the order
type BookerInfo struct {
	Name  string  `json:"booker_name"`
	Phone string  `json:"booker_phone"`
	Email *string `json:"booker_email,omitempty"`
}

// BookingRequest is a one-way or round-trip booking. Return is nil for one-way.
type BookingRequest struct {
	Onward        LegRequest
	Return        *LegRequest
	Booker        BookerInfo
	PaymentMethod *PaymentMethod
}

// CreateBookingRequest is the HTTP body for a booking
type CreateBookingRequest struct {
	ScheduleID       string           `json:"schedule_id" binding:"required,uuid"`
	HoldID           *string          `json:"hold_id,omitempty" binding:"omitempty,uuid"`
	Passengers       []PassengerInput `json:"passengers" binding:"required,min=1,dive"`
	ReturnScheduleID *string          `json:"return_schedule_id,omitempty" binding:"omitempty,uuid"`
	ReturnHoldID     *string          `json:"return_hold_id,omitempty" binding:"omitempty,uuid"`
	ReturnPassengers []PassengerInput `json:"return_passengers,omitempty" binding:"omitempty,dive"`
	BookerName       string           `json:"booker_name" binding:"required"`
	BookerPhone      string           `json:"booker_phone" binding:"required"`
	BookerEmail      *string          `json:"booker_email,omitempty" binding:"omitempty,email"`
	PaymentMethod    *PaymentMethod   `json:"payment_method,omitempty"`
}

// AdminCreateBookingRequest books on behalf of a user
type AdminCreateBookingRequest struct {
	CreateBookingRequest
	UserID *string `json:"user_id,omitempty" binding:"omitempty,uuid"`
}

// ToBookingRequest converts the HTTP body into the typed two-leg request
func (r *CreateBookingRequest) ToBookingRequest() (*BookingRequest, error) {
	scheduleID, err := uuid.Parse(r.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule_id: %w", err)
	}

	req := &BookingRequest{
		Onward: LegRequest{ScheduleID: scheduleID, Passengers: r.Passengers},
		Booker: BookerInfo{
			Name:  r.BookerName,
			Phone: r.BookerPhone,
			Email: r.BookerEmail,
		},
		PaymentMethod: r.PaymentMethod,
	}
	if r.HoldID != nil {
		holdID, err := uuid.Parse(*r.HoldID)
		if err != nil {
			return nil, fmt.Errorf("invalid hold_id: %w", err)
		}
		req.Onward.HoldID = &holdID
	}

	if r.ReturnScheduleID == nil {
		if len(r.ReturnPassengers) > 0 {
			return nil, fmt.Errorf("return_passengers given without return_schedule_id")
		}
		return req, nil
	}

	returnID, err := uuid.Parse(*r.ReturnScheduleID)
	if err != nil {
		return nil, fmt.Errorf("invalid return_schedule_id: %w", err)
	}
	returnLeg := &LegRequest{ScheduleID: returnID, Passengers: r.ReturnPassengers}
	if r.ReturnHoldID != nil {
		holdID, err := uuid.Parse(*r.ReturnHoldID)
		if err != nil {
			return nil, fmt.Errorf("invalid return_hold_id: %w", err)
		}
		returnLeg.HoldID = &holdID
	}
	req.Return = returnLeg

	return req, nil
}

// LegResult is what one committed leg produced
type LegResult struct {
	Leg      Leg       `json:"leg"`
	Bookings []Booking `json:"bookings"`
	Ticket   *Ticket   `json:"ticket"`
	Subtotal float64   `json:"subtotal"`
}

// CreateBookingResponse is returned after a successful booking
type CreateBookingResponse struct {
	Order        *Order    `json:"order"`
	Bookings     []Booking `json:"bookings"`
	Ticket       *Ticket   `json:"ticket"`
	TicketNumber string    `json:"ticket_number"`
	ReturnTicket *Ticket   `json:"return_ticket,omitempty"`
	Payment      *Payment  `json:"payment,omitempty"`
}

// OrderDetails is an order with everything hanging off it
type OrderDetails struct {
	Order    *Order    `json:"order"`
	Bookings []Booking `json:"bookings"`
	Tickets  []Ticket  `json:"tickets"`
	Payments []Payment `json:"payments"`
	Refunds  []Refund  `json:"refunds"`
}

// CancelBookingRequest is the body of a self-service cancellation
type CancelBookingRequest struct {
	Reason                     *string `json:"reason,omitempty"`
	OverrideCancellationPolicy bool    `json:"override_cancellation_policy"`
}

// AdminCancelBookingRequest is the body of an admin cancellation
type AdminCancelBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// UpdateBookingStatusRequest is the body of an admin status change
type UpdateBookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required"`
	Reason *string       `json:"reason,omitempty"`
}

// CancellationResult describes what a cancellation changed
type CancellationResult struct {
	Booking        *Booking `json:"booking"`
	OrderTotal     float64  `json:"order_total"`
	OrderCancelled bool     `json:"order_cancelled"`
	Refund         *Refund  `json:"refund,omitempty"`
	Payment        *Payment `json:"payment,omitempty"`
	RefundError    string   `json:"refund_error,omitempty"`
}
