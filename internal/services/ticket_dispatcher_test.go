package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (f *fakeSMS) Send(phone, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[phone] = message
	return "ref-1", nil
}

func (f *fakeSMS) GetName() string { return "fake" }

func (f *fakeSMS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func ticketMessage() events.TicketMessage {
	return events.TicketMessage{
		TicketNumber: "TKT-20260501-ABCD1234",
		OrderID:      uuid.New(),
		Leg:          "onward",
		QRPayload:    `{"ticket_number":"TKT-20260501-ABCD1234"}`,
		RouteName:    "Kathmandu - Pokhara",
		BusNumber:    "BA 2 KHA 1234",
		DepartureAt:  time.Date(2026, 5, 2, 7, 0, 0, 0, time.UTC),
		BookerName:   "Sita Sharma",
		BookerPhone:  "9841234567",
		Passengers: []events.TicketPassenger{
			{Name: "Sita Sharma", Seat: "1A"},
			{Name: "Ram Sharma", Seat: "1B"},
		},
		Subtotal: 3000,
		Currency: "NPR",
	}
}

func TestTicketNotifier_Deliver(t *testing.T) {
	dir := t.TempDir()
	gateway := &fakeSMS{}
	notifier := NewTicketNotifier(gateway, dir, quietLogger())

	msg := ticketMessage()
	require.NoError(t, notifier.Deliver(context.Background(), msg))

	info, err := os.Stat(filepath.Join(dir, "ETICKET_TKT-20260501-ABCD1234.pdf"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.Contains(t, gateway.sent, "9841234567")
	text := gateway.sent["9841234567"]
	assert.Contains(t, text, msg.TicketNumber)
	assert.Contains(t, text, "Seats 1A,1B")
	assert.Contains(t, text, "NPR 3000.00")
}

func TestTicketNotifier_NoPhoneSkipsSMS(t *testing.T) {
	gateway := &fakeSMS{}
	notifier := NewTicketNotifier(gateway, "", quietLogger())

	msg := ticketMessage()
	msg.BookerPhone = ""
	require.NoError(t, notifier.Deliver(context.Background(), msg))
	assert.Zero(t, gateway.count())
}

func TestTicketNotifier_GatewayFailure(t *testing.T) {
	notifier := NewTicketNotifier(&fakeSMS{err: errors.New("provider down")}, "", quietLogger())

	err := notifier.Deliver(context.Background(), ticketMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake")
}

func TestAsyncTicketDispatcher_WaitsForDelivery(t *testing.T) {
	gateway := &fakeSMS{}
	dispatcher := NewAsyncTicketDispatcher(NewTicketNotifier(gateway, "", quietLogger()), quietLogger())

	dispatcher.Dispatch(context.Background(), ticketMessage())
	dispatcher.Wait()

	assert.Equal(t, 1, gateway.count())
}

func TestKafkaTicketDispatcher_Publishes(t *testing.T) {
	publisher := &recordingPublisher{}
	dispatcher := NewKafkaTicketDispatcher(publisher, quietLogger())

	dispatcher.Dispatch(context.Background(), ticketMessage())

	require.Len(t, publisher.tickets, 1)
	assert.Equal(t, "TKT-20260501-ABCD1234", publisher.tickets[0].TicketNumber)
}
