package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/database"
	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type cancellationFixture struct {
	bookings  *mockBookingStore
	payments  *mockPaymentStore
	gateway   *stubProcessor
	seatCache *stubSeatCache
	publisher *recordingPublisher
	audit     *recordingAudit
	clock     *clock.Manual
	svc       *CancellationService
	owner     models.Actor
	booking   *models.BookingWithSchedule
}

func newCancellationFixture() *cancellationFixture {
	owner := userActor()
	f := &cancellationFixture{
		bookings:  &mockBookingStore{},
		payments:  &mockPaymentStore{},
		gateway:   &stubProcessor{},
		seatCache: &stubSeatCache{},
		publisher: &recordingPublisher{},
		audit:     &recordingAudit{},
		clock:     clock.NewManual(testNow),
		owner:     owner,
		booking: &models.BookingWithSchedule{
			Booking: models.Booking{
				ID:         uuid.New(),
				OrderID:    uuid.New(),
				ScheduleID: uuid.New(),
				SeatNumber: "3B",
				Fare:       1200,
				Status:     models.BookingStatusBooked,
			},
			DepartureAt: testNow.Add(48 * time.Hour),
			OrderUserID: &owner.UserID,
		},
	}

	processors := NewProcessorSet(OfflineProcessor{}, f.gateway)
	payments := NewPaymentService(f.bookings, f.payments, processors, f.seatCache, f.publisher, f.audit, f.clock, quietLogger())
	policy := config.DefaultCancellationPolicy(2 * time.Hour)

	f.svc = NewCancellationService(f.bookings, payments, f.seatCache, f.publisher, f.audit, policy, f.clock, quietLogger())
	f.bookings.On("GetByID", f.booking.ID).Return(f.booking, nil)
	return f
}

// expectCancel makes the store cancel the fixture booking under terms and
// commit the given refund
func (f *cancellationFixture) expectCancel(terms database.CancelTerms, orderTotal float64, orderCancelled bool, payment *models.Payment, refund *models.Refund) {
	cancelled := f.booking.Booking
	cancelled.Status = models.BookingStatusCancelled
	f.bookings.On("CancelBooking", f.booking.ID, terms, mock.AnythingOfType("time.Time")).
		Return(&database.BookingCancellation{
			Booking:        &cancelled,
			OrderTotal:     orderTotal,
			OrderCancelled: orderCancelled,
			Payment:        payment,
			Refund:         refund,
		}, nil)
}

func userTerms(reason string, actor models.Actor, percent float64) database.CancelTerms {
	return database.CancelTerms{Reason: reason, ActorID: actor.IDPtr(), RefundPercent: percent}
}

func adminTerms(reason string, actor models.Actor) database.CancelTerms {
	return database.CancelTerms{Reason: reason, ActorID: actor.IDPtr(), RefundPercent: 100, SettleRemainder: true}
}

func TestCancellationService_CancelBooking_UnpaidOrder(t *testing.T) {
	f := newCancellationFixture()
	f.expectCancel(userTerms(ReasonCancelledByUser, f.owner, 100), 1200, false, nil, nil)

	result, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, f.owner)
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusCancelled, result.Booking.Status)
	assert.Equal(t, 1200.0, result.OrderTotal)
	assert.Nil(t, result.Refund)
	assert.Empty(t, f.gateway.refunds)
	assert.Equal(t, []uuid.UUID{f.booking.ScheduleID}, f.seatCache.invalidated)
	assert.Equal(t, []events.EventType{events.BookingCancelled}, f.publisher.types())
	assert.Equal(t, []string{AuditBookingCancel}, f.audit.actions())
}

func TestCancellationService_CancelBooking_PartialRefundByTier(t *testing.T) {
	f := newCancellationFixture()
	// 10 hours out falls in the 75% tier
	f.clock.Set(f.booking.DepartureAt.Add(-10 * time.Hour))

	payment := &models.Payment{ID: uuid.New(), OrderID: f.booking.OrderID, Amount: 2400, Method: models.PaymentMethodESewa, Status: models.PaymentStatusCompleted}
	refund := &models.Refund{PaymentID: payment.ID, BookingID: &f.booking.ID, Amount: 900}
	f.expectCancel(userTerms("plans changed", f.owner, 75), 1200, false, payment, refund)

	reason := "plans changed"
	result, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{Reason: &reason}, f.owner)
	require.NoError(t, err)

	require.NotNil(t, result.Refund)
	assert.Equal(t, 900.0, result.Refund.Amount)
	assert.Equal(t, f.booking.ID, *result.Refund.BookingID)
	assert.Equal(t, []float64{900}, f.gateway.refunds)
	assert.Empty(t, result.RefundError)
	assert.Equal(t, []string{AuditBookingCancel}, f.audit.actions())
}

func TestCancellationService_CancelBooking_LastSeatKeepsTier(t *testing.T) {
	f := newCancellationFixture()
	// single seat order cancelled 10 hours out: 75% of 1200, not the whole payment
	f.clock.Set(f.booking.DepartureAt.Add(-10 * time.Hour))

	payment := &models.Payment{ID: uuid.New(), OrderID: f.booking.OrderID, Amount: 1200, Method: models.PaymentMethodKhalti, Status: models.PaymentStatusRefunded}
	refund := &models.Refund{PaymentID: payment.ID, BookingID: &f.booking.ID, Amount: 900}
	f.expectCancel(userTerms(ReasonCancelledByUser, f.owner, 75), 0, true, payment, refund)

	result, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, f.owner)
	require.NoError(t, err)

	assert.True(t, result.OrderCancelled)
	assert.Equal(t, 900.0, result.Refund.Amount)
	assert.Equal(t, []float64{900}, f.gateway.refunds)
	assert.Equal(t, models.PaymentStatusRefunded, result.Payment.Status)
	assert.Equal(t, []events.EventType{events.BookingCancelled, events.PaymentRefunded}, f.publisher.types())
	assert.Equal(t, []string{AuditBookingCancel, AuditPaymentRefund}, f.audit.actions())
	f.payments.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancellationService_CancelBooking_ProcessorFailureKeepsCancellation(t *testing.T) {
	f := newCancellationFixture()
	f.gateway.refundErr = errors.New("connection reset")

	payment := &models.Payment{ID: uuid.New(), OrderID: f.booking.OrderID, Amount: 2400, Method: models.PaymentMethodKhalti, Status: models.PaymentStatusCompleted}
	refund := &models.Refund{PaymentID: payment.ID, BookingID: &f.booking.ID, Amount: 1200}
	f.expectCancel(userTerms(ReasonCancelledByUser, f.owner, 100), 1200, false, payment, refund)

	result, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, f.owner)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RefundError)
	assert.Equal(t, 1200.0, result.Refund.Amount, "the committed refund record stands")
	assert.Equal(t, models.BookingStatusCancelled, result.Booking.Status)
}

func TestCancellationService_CancelBooking_StoreFailure(t *testing.T) {
	f := newCancellationFixture()
	f.bookings.On("CancelBooking", f.booking.ID, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, f.owner)
	require.Error(t, err)
	assert.Empty(t, f.gateway.refunds)
	assert.Empty(t, f.publisher.types())
}

func TestCancellationService_CancelBooking_InsideCutoff(t *testing.T) {
	f := newCancellationFixture()
	f.clock.Set(f.booking.DepartureAt.Add(-time.Hour))

	_, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, f.owner)
	assert.True(t, domain.IsPolicyViolation(err))

	_, err = f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{OverrideCancellationPolicy: true}, f.owner)
	assert.True(t, domain.IsAuthorization(err), "owners cannot override the policy")

	f.bookings.AssertNotCalled(t, "CancelBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancellationService_CancelBooking_AdminIgnoresCutoff(t *testing.T) {
	f := newCancellationFixture()
	f.clock.Set(f.booking.DepartureAt.Add(-time.Hour))
	admin := adminActor()

	f.expectCancel(adminTerms(ReasonCancelledByAdmin, admin), 0, false, nil, nil)

	_, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{OverrideCancellationPolicy: true}, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{AuditBookingAdminCancel}, f.audit.actions())
}

func TestCancellationService_CancelBooking_Rejects(t *testing.T) {
	f := newCancellationFixture()

	_, err := f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, userActor())
	assert.True(t, domain.IsAuthorization(err))

	for _, status := range []models.BookingStatus{models.BookingStatusCancelled, models.BookingStatusCompleted} {
		f.booking.Status = status
		_, err = f.svc.CancelBooking(context.Background(), f.booking.ID, models.CancelBookingRequest{}, f.owner)
		assert.True(t, domain.IsValidation(err), "status %s", status)
	}

	missing := uuid.New()
	f.bookings.On("GetByID", missing).Return(nil, nil)
	_, err = f.svc.CancelBooking(context.Background(), missing, models.CancelBookingRequest{}, f.owner)
	assert.True(t, domain.IsNotFound(err))
}

func TestCancellationService_AdminCancelBooking(t *testing.T) {
	f := newCancellationFixture()
	f.clock.Set(f.booking.DepartureAt.Add(-10 * time.Minute))
	admin := adminActor()

	_, err := f.svc.AdminCancelBooking(context.Background(), f.booking.ID, "bus breakdown", f.owner)
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.svc.AdminCancelBooking(context.Background(), f.booking.ID, "", admin)
	assert.True(t, domain.IsValidation(err))

	payment := &models.Payment{ID: uuid.New(), OrderID: f.booking.OrderID, Method: models.PaymentMethodCash, Status: models.PaymentStatusCompleted}
	refund := &models.Refund{PaymentID: payment.ID, BookingID: &f.booking.ID, Amount: 1200}
	f.expectCancel(adminTerms("bus breakdown", admin), 1200, false, payment, refund)

	result, err := f.svc.AdminCancelBooking(context.Background(), f.booking.ID, "bus breakdown", admin)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, result.Refund.Amount, "admin cancellations refund the full fare")
	assert.Empty(t, f.gateway.refunds, "cash refunds settle offline")
}

func TestCancellationService_RemoveSeatFromBooking(t *testing.T) {
	f := newCancellationFixture()
	admin := adminActor()

	sibling := f.booking.Booking
	sibling.ID = uuid.New()
	sibling.SeatNumber = "3C"
	f.bookings.On("FindActiveBySeat", f.booking.OrderID, f.booking.ScheduleID, "3C").Return(&sibling, nil)
	f.bookings.On("FindActiveBySeat", f.booking.OrderID, f.booking.ScheduleID, "9Z").Return(nil, nil)

	cancelled := sibling
	cancelled.Status = models.BookingStatusCancelled
	f.bookings.On("CancelBooking", sibling.ID, adminTerms(ReasonSeatRemoved, admin), testNow).
		Return(&database.BookingCancellation{Booking: &cancelled, OrderTotal: 1200}, nil)

	result, err := f.svc.RemoveSeatFromBooking(context.Background(), f.booking.ID, " 3c ", admin)
	require.NoError(t, err)
	assert.Equal(t, "3C", result.Booking.SeatNumber)
	assert.Equal(t, []events.EventType{events.BookingSeatRemoved}, f.publisher.types())
	assert.Equal(t, []string{AuditBookingSeatRemove}, f.audit.actions())

	_, err = f.svc.RemoveSeatFromBooking(context.Background(), f.booking.ID, "9Z", admin)
	assert.True(t, domain.IsNotFound(err))

	_, err = f.svc.RemoveSeatFromBooking(context.Background(), f.booking.ID, "3C", f.owner)
	assert.True(t, domain.IsAuthorization(err))
}

func TestCancellationService_UpdateBookingStatus(t *testing.T) {
	admin := adminActor()

	t.Run("forward transition", func(t *testing.T) {
		f := newCancellationFixture()
		f.bookings.On("UpdateStatus", f.booking.ID, models.BookingStatusBooked, models.BookingStatusCompleted, testNow).Return(true, nil)

		updated, err := f.svc.UpdateBookingStatus(context.Background(), f.booking.ID,
			models.UpdateBookingStatusRequest{Status: models.BookingStatusCompleted}, admin)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCompleted, updated.Status)
		assert.NotNil(t, updated.CompletedAt)
		assert.Equal(t, []string{AuditBookingStatusUpdate}, f.audit.actions())
	})

	t.Run("lost race", func(t *testing.T) {
		f := newCancellationFixture()
		f.bookings.On("UpdateStatus", f.booking.ID, models.BookingStatusBooked, models.BookingStatusCompleted, testNow).Return(false, nil)

		_, err := f.svc.UpdateBookingStatus(context.Background(), f.booking.ID,
			models.UpdateBookingStatusRequest{Status: models.BookingStatusCompleted}, admin)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("cancel goes through cancellation", func(t *testing.T) {
		f := newCancellationFixture()
		f.expectCancel(adminTerms(ReasonCancelledByAdmin, admin), 0, false, nil, nil)

		updated, err := f.svc.UpdateBookingStatus(context.Background(), f.booking.ID,
			models.UpdateBookingStatusRequest{Status: models.BookingStatusCancelled}, admin)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, updated.Status)
		f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid transitions", func(t *testing.T) {
		f := newCancellationFixture()

		_, err := f.svc.UpdateBookingStatus(context.Background(), f.booking.ID,
			models.UpdateBookingStatusRequest{Status: "LOST"}, admin)
		assert.True(t, domain.IsValidation(err))

		_, err = f.svc.UpdateBookingStatus(context.Background(), f.booking.ID,
			models.UpdateBookingStatusRequest{Status: models.BookingStatusPending}, admin)
		assert.True(t, domain.IsValidation(err), "BOOKED cannot go back to PENDING")

		_, err = f.svc.UpdateBookingStatus(context.Background(), f.booking.ID,
			models.UpdateBookingStatusRequest{Status: models.BookingStatusCompleted}, f.owner)
		assert.True(t, domain.IsAuthorization(err))
	})
}
