package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"casepilot/internal/pipelineerr"
)

// WorkerConfig configures a polling worker loop.
type WorkerConfig struct {
	DB           *gorm.DB
	Dispatcher   Dispatcher
	PollInterval time.Duration
	JobTimeout   time.Duration
	Retry        Config
	Logger       *slog.Logger
	Now          func() time.Time
}

// Worker polls for queued jobs and dispatches them to the registered
// handler for their kind, grounded on the teacher's recon.Scheduler
// ticking-loop shape (time.Timer against a context, reschedule on fire).
type Worker struct {
	cfg WorkerConfig
}

// NewWorker constructs a Worker, filling in spec.md-named defaults.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{cfg: cfg}
}

// Run polls until ctx is cancelled, claiming and dispatching one job per
// tick when one is claimable.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	job, err := Claim(w.cfg.DB, w.cfg.Now())
	if err != nil {
		w.cfg.Logger.Error("claim job", "error", err)
		return
	}
	if job == nil {
		return
	}

	handler, ok := w.cfg.Dispatcher[job.Kind]
	if !ok {
		_ = Fail(w.cfg.DB, job.ID, "no handler registered for kind "+string(job.Kind), w.cfg.Retry, w.cfg.Now())
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	if err := handler(callCtx, w.cfg.DB, job); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			_ = Fail(w.cfg.DB, job.ID, "timeout", w.cfg.Retry, w.cfg.Now())
			return
		}
		reason := err.Error()
		retryable := true
		if pe, ok := pipelineerr.As(err); ok {
			retryable = pe.Code.Retryable()
		}
		if !retryable {
			_ = Fail(w.cfg.DB, job.ID, reason, Config{MaxAttempts: 1, BackoffBase: w.cfg.Retry.BackoffBase, BackoffFactor: w.cfg.Retry.BackoffFactor}, w.cfg.Now())
			return
		}
		_ = Fail(w.cfg.DB, job.ID, reason, w.cfg.Retry, w.cfg.Now())
		return
	}
	if err := Succeed(w.cfg.DB, job.ID); err != nil {
		w.cfg.Logger.Error("mark job succeeded", "job_id", job.ID, "error", err)
	}
}
