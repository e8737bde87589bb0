package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/stretchr/testify/mock"
)

type mockScheduleAPI struct{ mock.Mock }

func (m *mockScheduleAPI) CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest, actor models.Actor) (*models.ScheduleResponse, error) {
	args := m.Called(req, actor)
	resp, _ := args.Get(0).(*models.ScheduleResponse)
	return resp, args.Error(1)
}

func (m *mockScheduleAPI) GetSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	args := m.Called(scheduleID)
	schedule, _ := args.Get(0).(*models.Schedule)
	return schedule, args.Error(1)
}

func (m *mockScheduleAPI) GetSeatMap(ctx context.Context, scheduleID uuid.UUID) (*models.SeatMap, error) {
	args := m.Called(scheduleID)
	seatMap, _ := args.Get(0).(*models.SeatMap)
	return seatMap, args.Error(1)
}

type mockHoldAPI struct{ mock.Mock }

func (m *mockHoldAPI) ReserveSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string, holdDuration *time.Duration, actor models.Actor) (*models.HoldResponse, error) {
	args := m.Called(scheduleID, seatNumbers, holdDuration, actor)
	hold, _ := args.Get(0).(*models.HoldResponse)
	return hold, args.Error(1)
}

func (m *mockHoldAPI) GetHold(ctx context.Context, holdID uuid.UUID, actor models.Actor) (*models.HoldResponse, error) {
	args := m.Called(holdID, actor)
	hold, _ := args.Get(0).(*models.HoldResponse)
	return hold, args.Error(1)
}

func (m *mockHoldAPI) ReleaseHold(ctx context.Context, holdID uuid.UUID, actor models.Actor) (*models.HoldResponse, error) {
	args := m.Called(holdID, actor)
	hold, _ := args.Get(0).(*models.HoldResponse)
	return hold, args.Error(1)
}

type mockBookingAPI struct{ mock.Mock }

func (m *mockBookingAPI) CreateBooking(ctx context.Context, req *models.BookingRequest, actor models.Actor) (*models.CreateBookingResponse, error) {
	args := m.Called(req, actor)
	resp, _ := args.Get(0).(*models.CreateBookingResponse)
	return resp, args.Error(1)
}

func (m *mockBookingAPI) CreateBookingForUser(ctx context.Context, req *models.BookingRequest, userID *uuid.UUID, actor models.Actor) (*models.CreateBookingResponse, error) {
	args := m.Called(req, userID, actor)
	resp, _ := args.Get(0).(*models.CreateBookingResponse)
	return resp, args.Error(1)
}

func (m *mockBookingAPI) GetOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*models.OrderDetails, error) {
	args := m.Called(orderID, actor)
	details, _ := args.Get(0).(*models.OrderDetails)
	return details, args.Error(1)
}

type mockCancellationAPI struct{ mock.Mock }

func (m *mockCancellationAPI) CancelBooking(ctx context.Context, bookingID uuid.UUID, req models.CancelBookingRequest, actor models.Actor) (*models.CancellationResult, error) {
	args := m.Called(bookingID, req, actor)
	result, _ := args.Get(0).(*models.CancellationResult)
	return result, args.Error(1)
}

func (m *mockCancellationAPI) AdminCancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, actor models.Actor) (*models.CancellationResult, error) {
	args := m.Called(bookingID, reason, actor)
	result, _ := args.Get(0).(*models.CancellationResult)
	return result, args.Error(1)
}

func (m *mockCancellationAPI) RemoveSeatFromBooking(ctx context.Context, bookingID uuid.UUID, seatNumber string, actor models.Actor) (*models.CancellationResult, error) {
	args := m.Called(bookingID, seatNumber, actor)
	result, _ := args.Get(0).(*models.CancellationResult)
	return result, args.Error(1)
}

func (m *mockCancellationAPI) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, req models.UpdateBookingStatusRequest, actor models.Actor) (*models.Booking, error) {
	args := m.Called(bookingID, req, actor)
	booking, _ := args.Get(0).(*models.Booking)
	return booking, args.Error(1)
}

type mockPaymentAPI struct{ mock.Mock }

func (m *mockPaymentAPI) ProcessPayment(ctx context.Context, bookingID uuid.UUID, amount float64, method models.PaymentMethod, actor models.Actor) (*models.Payment, error) {
	args := m.Called(bookingID, amount, method, actor)
	payment, _ := args.Get(0).(*models.Payment)
	return payment, args.Error(1)
}

func (m *mockPaymentAPI) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string, actor models.Actor) (*models.RefundResult, error) {
	args := m.Called(paymentID, reason, actor)
	result, _ := args.Get(0).(*models.RefundResult)
	return result, args.Error(1)
}

type mockSeatResetter struct{ mock.Mock }

func (m *mockSeatResetter) ResetSeatStatus(ctx context.Context, scheduleID uuid.UUID, actor models.Actor) (*models.SeatResetResult, error) {
	args := m.Called(scheduleID, actor)
	result, _ := args.Get(0).(*models.SeatResetResult)
	return result, args.Error(1)
}

type mockJobRunner struct{ mock.Mock }

func (m *mockJobRunner) RunCleanupNow(ctx context.Context) (interface{}, error) {
	args := m.Called()
	return args.Get(0), args.Error(1)
}

func (m *mockJobRunner) RunAutoCompleteNow(ctx context.Context) (interface{}, error) {
	args := m.Called()
	return args.Get(0), args.Error(1)
}

func (m *mockJobRunner) GetJobStatus() map[string]interface{} {
	args := m.Called()
	status, _ := args.Get(0).(map[string]interface{})
	return status
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }
