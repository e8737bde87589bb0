package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/cache"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/sirupsen/logrus"
)

const sideEffectTimeout = 3 * time.Second

// publishEvent sends a booking event after commit. A broker failure is
// logged; the committed state is already authoritative.
func publishEvent(ctx context.Context, publisher events.Publisher, logger *logrus.Logger, event events.BookingEvent) {
	if publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := publisher.PublishBooking(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event": event.Type,
			"key":   event.Key(),
		}).Warn("Failed to publish booking event")
	}
}

// invalidateSeatMaps drops cached seat maps of schedules whose seats changed
func invalidateSeatMaps(ctx context.Context, seatCache cache.SeatCache, logger *logrus.Logger, scheduleIDs ...uuid.UUID) {
	if seatCache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	for _, id := range scheduleIDs {
		if err := seatCache.InvalidateSeatMap(ctx, id); err != nil {
			logger.WithError(err).WithField("schedule_id", id).Warn("Failed to invalidate seat map cache")
		}
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
