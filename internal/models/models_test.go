package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingStatusPending, BookingStatusBooked, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusBooked, BookingStatusCompleted, true},
		{BookingStatusBooked, BookingStatusCancelled, true},
		{BookingStatusBooked, BookingStatusPending, false},
		{BookingStatusCompleted, BookingStatusCancelled, false},
		{BookingStatusCancelled, BookingStatusBooked, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBookingStatus_Terminal(t *testing.T) {
	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.False(t, BookingStatusBooked.IsTerminal())
	assert.True(t, BookingStatus("LOST").IsTerminal())

	_, err := ParseBookingStatus("LOST")
	assert.Error(t, err)
}

func TestSeatHold_State(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	hold := &SeatHold{
		ID:          uuid.New(),
		SeatNumbers: StringArray{"1A", "1B"},
		Status:      HoldStatusActive,
		ExpiresAt:   now.Add(MinHoldDuration),
	}

	assert.Equal(t, HoldStatusActive, hold.State(now))
	assert.True(t, hold.IsActive(now.Add(299*time.Second)))
	// Expired exactly at expires_at
	assert.Equal(t, HoldStatusExpired, hold.State(now.Add(MinHoldDuration)))

	hold.Status = HoldStatusConsumed
	assert.Equal(t, HoldStatusConsumed, hold.State(now.Add(time.Hour)))
}

func TestSeatHold_Covers(t *testing.T) {
	hold := &SeatHold{SeatNumbers: StringArray{"1A", "1B"}}

	assert.True(t, hold.Covers([]string{"1B"}))
	assert.True(t, hold.Covers([]string{"1A", "1B"}))
	assert.False(t, hold.Covers([]string{"1A", "2A"}))
}

func TestCreateBookingRequest_ToBookingRequest(t *testing.T) {
	onward := uuid.New()
	ret := uuid.New()
	retStr := ret.String()

	body := &CreateBookingRequest{
		ScheduleID:       onward.String(),
		Passengers:       []PassengerInput{{SeatNumber: "1A", PassengerName: "Sita", PassengerPhone: "9841000000"}},
		ReturnScheduleID: &retStr,
		ReturnPassengers: []PassengerInput{{SeatNumber: "2B", PassengerName: "Sita", PassengerPhone: "9841000000"}},
		BookerName:       "Sita",
		BookerPhone:      "9841000000",
	}

	req, err := body.ToBookingRequest()
	require.NoError(t, err)
	assert.Equal(t, onward, req.Onward.ScheduleID)
	require.NotNil(t, req.Return)
	assert.Equal(t, ret, req.Return.ScheduleID)
	assert.Equal(t, []string{"2B"}, req.Return.SeatNumbers())

	body.ReturnScheduleID = nil
	_, err = body.ToBookingRequest()
	assert.Error(t, err, "return passengers without a return schedule")
}

func TestAmountsEqual(t *testing.T) {
	assert.True(t, AmountsEqual(0.1+0.2, 0.3))
	assert.False(t, AmountsEqual(1500, 1500.01))
	assert.True(t, PaymentMethodKhalti.IsOnlineGateway())
	assert.False(t, PaymentMethodCash.IsOnlineGateway())
	assert.False(t, PaymentMethod("CARD").IsValid())
}

func TestRefundShare(t *testing.T) {
	assert.Equal(t, 900.0, RefundShare(1200, 75))
	assert.Equal(t, 333.33, RefundShare(666.66, 50))
	assert.Equal(t, 0.0, RefundShare(1200, 0))
}

func TestQRPayload_RoundTrip(t *testing.T) {
	orderID := uuid.New()
	raw := EncodeQRPayload("TKT-20260501-0A1B2C3D", orderID)

	p, err := DecodeQRPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "TKT-20260501-0A1B2C3D", p.TicketNumber)
	assert.Equal(t, orderID, p.OrderID)

	_, err = DecodeQRPayload(`{"ticket_number":""}`)
	assert.Error(t, err)
}
