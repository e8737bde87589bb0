package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job names reported by GetJobStatus
const (
	JobOrphanCleanup = "orphan_cleanup"
	JobAutoComplete  = "auto_complete"
)

// jobTimeout bounds one scheduled run
const jobTimeout = 2 * time.Minute

// jobRun is the outcome of the last run of a job
type jobRun struct {
	At       time.Time
	Duration time.Duration
	Result   interface{}
	Err      string
}

// CronService manages scheduled background jobs
type CronService struct {
	cron        *cron.Cron
	maintenance *MaintenanceService
	config      config.MaintenanceConfig
	logger      *logrus.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	lastRun map[string]jobRun
}

// NewCronService creates a new CronService
func NewCronService(maintenance *MaintenanceService, cfg config.MaintenanceConfig, logger *logrus.Logger) *CronService {
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &CronService{
		cron:        c,
		maintenance: maintenance,
		config:      cfg,
		logger:      logger,
		entries:     make(map[string]cron.EntryID),
		lastRun:     make(map[string]jobRun),
	}
}

// Start schedules the maintenance jobs and starts the scheduler.
// Cron format: second minute hour day month weekday
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	id, err := s.cron.AddFunc(s.config.CleanupSpec, func() { s.runCleanup() })
	if err != nil {
		return fmt.Errorf("failed to schedule orphan cleanup job: %w", err)
	}
	s.entries[JobOrphanCleanup] = id
	s.logger.WithField("spec", s.config.CleanupSpec).Info("Scheduled: orphan booking cleanup")

	id, err = s.cron.AddFunc(s.config.AutoCompleteSpec, func() { s.runAutoComplete() })
	if err != nil {
		return fmt.Errorf("failed to schedule auto-complete job: %w", err)
	}
	s.entries[JobAutoComplete] = id
	s.logger.WithField("spec", s.config.AutoCompleteSpec).Info("Scheduled: booking auto-complete")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) runCleanup() {
	s.logger.Info("[CRON] Starting orphan cleanup job...")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.maintenance.CleanupOrphanedBookings(ctx)
	s.record(JobOrphanCleanup, start, result, err)
}

func (s *CronService) runAutoComplete() {
	s.logger.Info("[CRON] Starting auto-complete job...")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.maintenance.AutoCompleteBookings(ctx)
	s.record(JobAutoComplete, start, result, err)
}

func (s *CronService) record(job string, start time.Time, result interface{}, err error) {
	run := jobRun{At: start, Duration: time.Since(start), Result: result}
	if err != nil {
		run.Err = err.Error()
		s.logger.WithError(err).WithField("job", job).Error("[CRON ERROR] Job failed")
	} else {
		s.logger.WithFields(logrus.Fields{
			"job":      job,
			"duration": run.Duration,
		}).Info("[CRON] Job finished")
	}

	s.mu.Lock()
	s.lastRun[job] = run
	s.mu.Unlock()
}

// RunCleanupNow runs the orphan cleanup job immediately
func (s *CronService) RunCleanupNow(ctx context.Context) (interface{}, error) {
	s.logger.Info("[MANUAL] Running orphan cleanup now...")
	start := time.Now()
	result, err := s.maintenance.CleanupOrphanedBookings(ctx)
	s.record(JobOrphanCleanup, start, result, err)
	return result, err
}

// RunAutoCompleteNow runs the auto-complete job immediately
func (s *CronService) RunAutoCompleteNow(ctx context.Context) (interface{}, error) {
	s.logger.Info("[MANUAL] Running auto-complete now...")
	start := time.Now()
	result, err := s.maintenance.AutoCompleteBookings(ctx)
	s.record(JobAutoComplete, start, result, err)
	return result, err
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(s.entries)+len(s.lastRun))
	listed := make(map[string]bool)

	for name, id := range s.entries {
		entry := s.cron.Entry(id)
		job := map[string]interface{}{
			"name":     name,
			"id":       id,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		}
		s.addLastRun(job, name)
		jobs = append(jobs, job)
		listed[name] = true
	}
	// Jobs run by hand while the scheduler is off
	for name := range s.lastRun {
		if listed[name] {
			continue
		}
		job := map[string]interface{}{"name": name}
		s.addLastRun(job, name)
		jobs = append(jobs, job)
	}

	return map[string]interface{}{
		"running":   len(s.entries) > 0,
		"job_count": len(s.entries),
		"jobs":      jobs,
	}
}

func (s *CronService) addLastRun(job map[string]interface{}, name string) {
	run, ok := s.lastRun[name]
	if !ok {
		return
	}
	job["last_run_at"] = run.At
	job["last_duration_ms"] = run.Duration.Milliseconds()
	job["last_result"] = run.Result
	if run.Err != "" {
		job["last_error"] = run.Err
	}
}
