package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaProducer publishes to the booking and ticket topics
type KafkaProducer struct {
	writer       *kafka.Writer
	bookingTopic string
	ticketTopic  string
	logger       *logrus.Logger
}

// NewKafkaProducer creates a producer for cfg.Brokers
func NewKafkaProducer(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaProducer{
		writer:       writer,
		bookingTopic: cfg.BookingTopic,
		ticketTopic:  cfg.TicketTopic,
		logger:       logger,
	}
}

// PublishBooking writes a booking event keyed by its order
func (p *KafkaProducer) PublishBooking(ctx context.Context, event BookingEvent) error {
	return p.publish(ctx, p.bookingTopic, event.Key(), event)
}

// PublishTicket writes a ticket message keyed by ticket number
func (p *KafkaProducer) PublishTicket(ctx context.Context, msg TicketMessage) error {
	return p.publish(ctx, p.ticketTopic, msg.TicketNumber, msg)
}

func (p *KafkaProducer) publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"key":   key,
	}).Debug("Published to Kafka")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// Consumer reads one topic as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a group consumer on topic
func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

// Close closes the reader
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume hands each message to handler until ctx ends or the reader fails.
// A handler error stops consumption without committing the message.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// DecodeTicketMessage parses a message from the ticket topic
func DecodeTicketMessage(msg kafka.Message) (*TicketMessage, error) {
	var ticket TicketMessage
	if err := json.Unmarshal(msg.Value, &ticket); err != nil {
		return nil, fmt.Errorf("failed to decode ticket message: %w", err)
	}
	if ticket.TicketNumber == "" {
		return nil, fmt.Errorf("ticket message without ticket number")
	}
	return &ticket, nil
}
