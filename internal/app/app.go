// Package app wires configuration, storage and services for the binaries
// under cmd/.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nipeshtamang/ebus-sub002/internal/cache"
	"github.com/nipeshtamang/ebus-sub002/internal/clock"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/database"
	"github.com/nipeshtamang/ebus-sub002/internal/events"
	"github.com/nipeshtamang/ebus-sub002/internal/services"
	"github.com/nipeshtamang/ebus-sub002/pkg/sms"
	"github.com/sirupsen/logrus"
)

// App holds every long lived dependency of a process
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	DB        *database.PostgresDB
	SeatCache cache.SeatCache
	Publisher events.Publisher

	Schedules     *services.ScheduleService
	Holds         *services.HoldService
	Bookings      *services.BookingOrchestratorService
	Payments      *services.PaymentService
	Cancellations *services.CancellationService
	Maintenance   *services.MaintenanceService

	inlineTickets *services.AsyncTicketDispatcher
	closers       []func() error
}

// NewLogger returns the JSON logger every binary uses
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// New connects to Postgres, Redis and Kafka as configured and builds the services
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	logger.Info("Database connection established")

	a.SeatCache = cache.NoopCache{}
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			// Seat locks and the seat map cache are optional; Postgres stays authoritative
			logger.WithError(err).Warn("Redis unreachable, continuing without seat cache")
			redisCache.Close()
		} else {
			a.SeatCache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			logger.WithField("addr", cfg.Redis.Addr).Info("Redis seat cache enabled")
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.Publisher = events.NewKafkaProducer(cfg.Kafka, logger)
		logger.WithField("brokers", cfg.Kafka.Brokers).Info("Kafka event publishing enabled")
	} else {
		a.Publisher = events.NewLogPublisher(logger)
	}
	a.closers = append(a.closers, a.Publisher.Close)

	policy, err := config.LoadCancellationPolicy(cfg.Booking.PolicyFile, cfg.Booking.CancellationCutoff)
	if err != nil {
		a.Close()
		return nil, err
	}

	clk := clock.NewSystem()

	var audit services.AuditLogger = services.NoopAuditLogger{}
	if cfg.Security.EnableAuditLog {
		audit = services.NewAuditService(db, clk)
	}

	scheduleRepo := database.NewScheduleRepository(db.DB)
	holdRepo := database.NewHoldRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB)

	var tickets services.TicketDispatcher
	switch cfg.Ticket.Dispatch {
	case "kafka":
		tickets = services.NewKafkaTicketDispatcher(a.Publisher, logger)
	default:
		a.inlineTickets = services.NewAsyncTicketDispatcher(NewTicketNotifier(cfg, logger), logger)
		tickets = a.inlineTickets
	}

	processors := services.NewProcessorSet(services.OfflineProcessor{}, onlineProcessor(cfg, logger))

	a.Schedules = services.NewScheduleService(scheduleRepo, a.SeatCache, audit, clk, logger)
	a.Holds = services.NewHoldService(scheduleRepo, holdRepo, a.SeatCache, audit, clk, logger, cfg.Booking)
	a.Bookings = services.NewBookingOrchestratorService(
		scheduleRepo, holdRepo, bookingRepo, paymentRepo,
		a.SeatCache, a.Publisher, tickets, audit, clk, cfg.Booking, logger,
	)
	a.Payments = services.NewPaymentService(bookingRepo, paymentRepo, processors, a.SeatCache, a.Publisher, audit, clk, logger)
	a.Cancellations = services.NewCancellationService(
		bookingRepo, a.Payments,
		a.SeatCache, a.Publisher, audit, policy, clk, logger,
	)
	a.Maintenance = services.NewMaintenanceService(
		scheduleRepo, holdRepo, bookingRepo,
		a.SeatCache, a.Publisher, audit, clk, cfg.Maintenance, logger,
	)

	return a, nil
}

// onlineProcessor returns the gateway when credentials are set. Without
// them every method settles offline, which is the development setup.
func onlineProcessor(cfg *config.Config, logger *logrus.Logger) services.PaymentProcessor {
	gateway := services.NewGatewayProcessor(cfg.Payment, logger)
	if !gateway.IsConfigured() {
		logger.Warn("Payment gateway not configured, online methods settle offline")
		return nil
	}
	logger.WithField("environment", cfg.Payment.Environment).Info("Payment gateway enabled")
	return gateway
}

// NewTicketNotifier builds the ticket renderer with the configured SMS gateway
func NewTicketNotifier(cfg *config.Config, logger *logrus.Logger) *services.TicketNotifier {
	var gateway sms.Gateway
	if cfg.SMS.Mode == "production" {
		gateway = sms.NewURLGateway(cfg.SMS.APIURL, cfg.SMS.APIKey, cfg.SMS.Sender, logger)
	} else {
		gateway = sms.NewLogGateway(logger)
	}
	logger.WithField("gateway", gateway.GetName()).Info("Ticket SMS gateway ready")
	return services.NewTicketNotifier(gateway, cfg.Ticket.OutputDir, logger)
}

// Close waits for in-process ticket deliveries and releases connections in
// reverse order of opening
func (a *App) Close() {
	if a.inlineTickets != nil {
		a.inlineTickets.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.WithError(err).Warn("Close failed")
		}
	}
	a.closers = nil
}

// Describe summarizes the wiring for the startup log
func (a *App) Describe() string {
	return fmt.Sprintf("ticket_dispatch=%s redis=%t kafka=%t", a.Config.Ticket.Dispatch, a.Config.Redis.Addr != "", len(a.Config.Kafka.Brokers) > 0)
}
