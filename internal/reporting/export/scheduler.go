package export

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// SchedulerConfig configures the nightly export scheduler, grounded on
// services/otc-gateway/recon.SchedulerConfig.
type SchedulerConfig struct {
	DB        *gorm.DB
	OutputDir string
	Window    time.Duration
	RunHour   int
	RunMinute int
	Location  *time.Location
	Logger    *slog.Logger
}

// Scheduler runs Snapshot on a fixed daily cadence.
type Scheduler struct {
	db        *gorm.DB
	outputDir string
	window    time.Duration
	runHour   int
	runMinute int
	location  *time.Location
	logger    *slog.Logger
}

// NewScheduler constructs a Scheduler with SPEC_FULL.md's "once daily" cadence
// as the default.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		db:        cfg.DB,
		outputDir: cfg.OutputDir,
		window:    window,
		runHour:   clampHour(cfg.RunHour),
		runMinute: clampMinute(cfg.RunMinute),
		location:  loc,
		logger:    logger,
	}
}

// Start runs the scheduling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.db == nil {
		return
	}
	for {
		now := time.Now().In(s.location)
		next := s.nextRun(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			start := next.Add(-s.window)
			eligibilityPath, jobsPath, err := Snapshot(s.db, s.outputDir, start, next)
			if err != nil {
				s.logger.Error("export snapshot failed", "error", err)
				continue
			}
			s.logger.Info("export snapshot written", "eligibility_path", eligibilityPath, "jobs_path", jobsPath)
		}
	}
}

func (s *Scheduler) nextRun(after time.Time) time.Time {
	target := time.Date(after.Year(), after.Month(), after.Day(), s.runHour, s.runMinute, 0, 0, s.location)
	if !target.After(after) {
		target = target.Add(24 * time.Hour)
	}
	return target
}

func clampHour(hour int) int {
	if hour < 0 {
		return 0
	}
	if hour > 23 {
		return 23
	}
	return hour
}

func clampMinute(minute int) int {
	if minute < 0 {
		return 0
	}
	if minute > 59 {
		return 59
	}
	return minute
}
