package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingEvent_Key(t *testing.T) {
	orderID := uuid.New()
	scheduleID := uuid.New()

	assert.Equal(t, orderID.String(), BookingEvent{Type: BookingCreated, OrderID: &orderID, ScheduleID: &scheduleID}.Key())
	assert.Equal(t, scheduleID.String(), BookingEvent{Type: SeatsReset, ScheduleID: &scheduleID}.Key())
	assert.Equal(t, "bookings.completed", BookingEvent{Type: BookingsCompleted}.Key())
}

func TestDecodeTicketMessage(t *testing.T) {
	msg := TicketMessage{
		TicketNumber: "TKT-20260501-0A1B2C3D",
		OrderID:      uuid.New(),
		Leg:          "onward",
		Passengers:   []TicketPassenger{{Name: "Sita", Phone: "9841234567", Seat: "1A"}},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	decoded, err := DecodeTicketMessage(kafka.Message{Value: data})
	require.NoError(t, err)
	assert.Equal(t, msg.TicketNumber, decoded.TicketNumber)
	assert.Equal(t, msg.OrderID, decoded.OrderID)
	assert.Len(t, decoded.Passengers, 1)

	_, err = DecodeTicketMessage(kafka.Message{Value: []byte(`{"order_id":"` + uuid.NewString() + `"}`)})
	assert.Error(t, err)

	_, err = DecodeTicketMessage(kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var p Publisher = NewLogPublisher(logger)
	assert.NoError(t, p.PublishBooking(context.Background(), BookingEvent{Type: BookingCreated}))
	assert.NoError(t, p.PublishTicket(context.Background(), TicketMessage{TicketNumber: "TKT-1"}))
	assert.NoError(t, p.Close())
}
