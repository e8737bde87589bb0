package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HoldExpirationService deletes expired hold rows on a ticker
type HoldExpirationService struct {
	maintenance *MaintenanceService
	logger      *logrus.Logger
	interval    time.Duration
	stopCh      chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
}

// NewHoldExpirationService creates a new hold sweeper. A non-positive
// interval falls back to one minute.
func NewHoldExpirationService(maintenance *MaintenanceService, interval time.Duration, logger *logrus.Logger) *HoldExpirationService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HoldExpirationService{
		maintenance: maintenance,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start begins the background sweep
func (s *HoldExpirationService) Start() {
	s.logger.WithField("interval", s.interval).Info("Starting hold expiration service")
	go s.run()
}

// Stop stops the sweep and waits for the current pass. Call it only after Start.
func (s *HoldExpirationService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping hold expiration service")
		close(s.stopCh)
	})
	<-s.done
}

func (s *HoldExpirationService) run() {
	defer close(s.done)

	// Run immediately on start
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			s.logger.Info("Hold expiration service stopped")
			return
		}
	}
}

// RunOnce runs a single sweep
func (s *HoldExpirationService) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if _, err := s.maintenance.ExpireHolds(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to expire holds")
	}
}
