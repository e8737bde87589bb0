package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubProcessor approves, declines or fails on demand and records refunds
type stubProcessor struct {
	result    *ChargeResult
	err       error
	refundErr error
	refunds   []float64
}

func (p *stubProcessor) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return p.result, p.err
}

func (p *stubProcessor) Refund(_ context.Context, _ *models.Payment, amount float64) error {
	p.refunds = append(p.refunds, amount)
	return p.refundErr
}

func (p *stubProcessor) Name() string { return "stub" }

type paymentFixture struct {
	bookings  *mockBookingStore
	payments  *mockPaymentStore
	gateway   *stubProcessor
	seatCache *stubSeatCache
	publisher *recordingPublisher
	audit     *recordingAudit
	svc       *PaymentService
	owner     models.Actor
	booking   *models.BookingWithSchedule
	order     *models.Order
}

func newPaymentFixture() *paymentFixture {
	owner := userActor()
	orderID := uuid.New()

	f := &paymentFixture{
		bookings:  &mockBookingStore{},
		payments:  &mockPaymentStore{},
		gateway:   &stubProcessor{result: &ChargeResult{Approved: true, Reference: "UID-1"}},
		seatCache: &stubSeatCache{},
		publisher: &recordingPublisher{},
		audit:     &recordingAudit{},
		owner:     owner,
		order: &models.Order{
			ID:       orderID,
			UserID:   &owner.UserID,
			Currency: "NPR",
			Status:   models.OrderStatusPending,
		},
		booking: &models.BookingWithSchedule{
			Booking: models.Booking{
				ID:         uuid.New(),
				OrderID:    orderID,
				ScheduleID: uuid.New(),
				SeatNumber: "1A",
				Fare:       1500,
				Status:     models.BookingStatusPending,
			},
			DepartureAt: testNow.Add(48 * time.Hour),
			OrderUserID: &owner.UserID,
		},
	}
	f.svc = NewPaymentService(
		f.bookings, f.payments,
		NewProcessorSet(OfflineProcessor{}, f.gateway),
		f.seatCache, f.publisher, f.audit,
		clock.NewFixed(testNow), quietLogger(),
	)
	f.bookings.On("GetByID", f.booking.ID).Return(f.booking, nil)
	f.bookings.On("GetOrder", orderID).Return(f.order, nil)
	return f
}

func TestPaymentService_ProcessPayment_Completed(t *testing.T) {
	f := newPaymentFixture()
	f.payments.On("ActiveFareTotal", f.order.ID).Return(3000.0, nil)
	f.payments.On("Record", mock.AnythingOfType("*models.Payment"), testNow).Return(2, nil)

	payment, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 3000, models.PaymentMethodESewa, f.owner)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.ProcessorReference)
	assert.Equal(t, "UID-1", *payment.ProcessorReference)
	assert.Equal(t, []events.EventType{events.PaymentCompleted}, f.publisher.types())
	assert.Equal(t, []string{AuditPaymentProcess}, f.audit.actions())
}

func TestPaymentService_ProcessPayment_OfflineMethod(t *testing.T) {
	f := newPaymentFixture()
	f.payments.On("ActiveFareTotal", f.order.ID).Return(1500.0, nil)
	f.payments.On("Record", mock.Anything, testNow).Return(0, nil)

	payment, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 1500, models.PaymentMethodCash, adminActor())
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Contains(t, *payment.ProcessorReference, "CASH-")
}

func TestPaymentService_ProcessPayment_Declined(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.result = &ChargeResult{Approved: false, FailureReason: "card declined"}
	f.payments.On("ActiveFareTotal", f.order.ID).Return(1500.0, nil)
	f.payments.On("Record", mock.Anything, testNow).Return(0, nil)

	payment, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 1500, models.PaymentMethodKhalti, f.owner)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "card declined", *payment.FailureReason)
	assert.Equal(t, []events.EventType{events.PaymentFailed}, f.publisher.types())
}

func TestPaymentService_ProcessPayment_ProcessorDown(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.result = nil
	f.gateway.err = errors.New("connection refused")
	f.payments.On("ActiveFareTotal", f.order.ID).Return(1500.0, nil)
	f.payments.On("Record", mock.Anything, testNow).Return(0, nil)

	payment, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 1500, models.PaymentMethodIPSConnect, f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
}

func TestPaymentService_ProcessPayment_AmountMismatch(t *testing.T) {
	f := newPaymentFixture()
	f.payments.On("ActiveFareTotal", f.order.ID).Return(3000.0, nil)

	_, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 2999.99, models.PaymentMethodESewa, f.owner)
	assert.True(t, domain.IsValidation(err))
	f.payments.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestPaymentService_ProcessPayment_Rejects(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 1500, "CHEQUE", f.owner)
	assert.True(t, domain.IsValidation(err), "unknown method")

	_, err = f.svc.ProcessPayment(context.Background(), f.booking.ID, 0, models.PaymentMethodCash, f.owner)
	assert.True(t, domain.IsValidation(err), "zero amount")

	_, err = f.svc.ProcessPayment(context.Background(), f.booking.ID, 1500, models.PaymentMethodCash, userActor())
	assert.True(t, domain.IsAuthorization(err), "someone else's booking")

	missing := uuid.New()
	f.bookings.On("GetByID", missing).Return(nil, nil)
	_, err = f.svc.ProcessPayment(context.Background(), missing, 1500, models.PaymentMethodCash, f.owner)
	assert.True(t, domain.IsNotFound(err))
}

func TestPaymentService_ProcessPayment_AlreadyPaid(t *testing.T) {
	f := newPaymentFixture()
	f.payments.On("ActiveFareTotal", f.order.ID).Return(1500.0, nil)
	f.payments.On("Record", mock.Anything, testNow).
		Return(0, domain.ValidationError{Field: "order", Msg: "order is already paid"})

	_, err := f.svc.ProcessPayment(context.Background(), f.booking.ID, 1500, models.PaymentMethodCash, f.owner)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, f.publisher.types())
}

func refundResultFor(f *paymentFixture, method models.PaymentMethod, amount float64) *models.RefundResult {
	ref := "UID-1"
	return &models.RefundResult{
		Payment: &models.Payment{
			ID:                 uuid.New(),
			OrderID:            f.order.ID,
			Amount:             amount,
			Currency:           "NPR",
			Method:             method,
			Status:             models.PaymentStatusRefunded,
			ProcessorReference: &ref,
		},
		Refund:        &models.Refund{Amount: amount, Reason: "bus breakdown"},
		ReleasedSeats: []string{"1A"},
	}
}

func TestPaymentService_RefundPayment(t *testing.T) {
	f := newPaymentFixture()
	admin := adminActor()
	result := refundResultFor(f, models.PaymentMethodESewa, 1500)
	paymentID := result.Payment.ID

	f.payments.On("Refund", paymentID, "bus breakdown", admin.IDPtr(), testNow).Return(result, nil)
	f.bookings.On("ListOrderBookings", f.order.ID).Return([]models.Booking{f.booking.Booking}, nil)

	got, err := f.svc.RefundPayment(context.Background(), paymentID, " bus breakdown ", admin)
	require.NoError(t, err)

	assert.Same(t, result, got)
	assert.Equal(t, []float64{1500}, f.gateway.refunds)
	assert.Equal(t, []uuid.UUID{f.booking.ScheduleID}, f.seatCache.invalidated)
	assert.Equal(t, []events.EventType{events.PaymentRefunded}, f.publisher.types())
	assert.Equal(t, []string{AuditPaymentRefund}, f.audit.actions())
}

func TestPaymentService_RefundPayment_GatewayFailureKeepsRefund(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.refundErr = errors.New("gateway timeout")
	admin := adminActor()
	result := refundResultFor(f, models.PaymentMethodKhalti, 800)

	f.payments.On("Refund", result.Payment.ID, "duplicate charge", admin.IDPtr(), testNow).Return(result, nil)
	f.bookings.On("ListOrderBookings", f.order.ID).Return(nil, nil)

	_, err := f.svc.RefundPayment(context.Background(), result.Payment.ID, "duplicate charge", admin)
	assert.NoError(t, err)
}

func TestPaymentService_RefundPayment_Rejects(t *testing.T) {
	f := newPaymentFixture()
	paymentID := uuid.New()

	_, err := f.svc.RefundPayment(context.Background(), paymentID, "reason", userActor())
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.svc.RefundPayment(context.Background(), paymentID, "  ", adminActor())
	assert.True(t, domain.IsValidation(err))

	admin := adminActor()
	f.payments.On("Refund", paymentID, "reason", admin.IDPtr(), testNow).
		Return(nil, domain.ValidationError{Field: "status", Msg: "only completed payments can be refunded"})
	_, err = f.svc.RefundPayment(context.Background(), paymentID, "reason", admin)
	assert.True(t, domain.IsValidation(err))
}
