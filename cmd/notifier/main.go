// Command notifier consumes issued tickets from Kafka, renders the PDF and
// texts the booker. Used when the server runs with TICKET_DISPATCH=kafka.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nipeshtamang/ebus-sub002/internal/app"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// retryDelay is the pause before reconnecting after a reader failure
const retryDelay = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger("info").Fatalf("Failed to load configuration: %v", err)
	}
	logger := app.NewLogger(cfg.Server.LogLevel)

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	notifier := app.NewTicketNotifier(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic": cfg.Kafka.TicketTopic,
		"group": cfg.Kafka.ConsumerGroup,
	}).Info("Ticket notifier started")

	handle := func(ctx context.Context, msg kafka.Message) error {
		ticket, err := events.DecodeTicketMessage(msg)
		if err != nil {
			// A message we cannot read will never become readable; skip it
			logger.WithError(err).WithField("offset", msg.Offset).Error("Dropping undecodable ticket message")
			return nil
		}

		entry := logger.WithFields(logrus.Fields{
			"ticket_number": ticket.TicketNumber,
			"order_id":      ticket.OrderID,
		})
		if err := notifier.Deliver(ctx, *ticket); err != nil {
			// Delivery is best effort; the booking is already confirmed
			entry.WithError(err).Error("Ticket delivery failed")
			return nil
		}
		entry.Info("Ticket delivered")
		return nil
	}

	for {
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.TicketTopic)
		err := consumer.Consume(ctx, handle)
		consumer.Close()

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			logger.Info("Ticket notifier stopped")
			return
		}
		logger.WithError(err).Warnf("Consumer failed, reconnecting in %s", retryDelay)

		select {
		case <-ctx.Done():
			logger.Info("Ticket notifier stopped")
			return
		case <-time.After(retryDelay):
		}
	}
}
