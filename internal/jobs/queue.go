// Package jobs implements the durable job queue spec.md §4.10 describes:
// enqueue, row-locked claim, retry with exponential backoff, cancellation,
// and per-case progress aggregation. The claim/transition shape is
// grounded on the teacher's funding.Processor.Process transactional
// row-lock pattern; the poll loop is grounded on the teacher's
// recon.Scheduler.Start ticking-loop shape.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"casepilot/internal/store"
)

// Config carries the retry policy spec.md §4.10 names.
type Config struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffFactor float64
}

// DefaultConfig matches spec.md §4.10's stated defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BackoffBase: 10 * time.Second, BackoffFactor: 2}
}

// Enqueue inserts a new queued job for caseID, runnable immediately.
func Enqueue(db *gorm.DB, kind store.JobKind, caseID uuid.UUID, payload any, now time.Time) (*store.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := store.Job{
		ID:        uuid.New(),
		Kind:      kind,
		CaseID:    caseID,
		Payload:   body,
		State:     store.JobQueued,
		NotBefore: now,
	}
	if err := db.Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Claim locks and returns the oldest queued job (across all kinds) whose
// not_before has elapsed, transitioning it to running. Returns
// (nil, nil) when no job is claimable.
func Claim(db *gorm.DB, now time.Time) (*store.Job, error) {
	var claimed *store.Job
	err := db.Transaction(func(tx *gorm.DB) error {
		var job store.Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("state = ? AND not_before <= ?", store.JobQueued, now).
			Order("not_before asc").
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		job.State = store.JobRunning
		if err := tx.Save(&job).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	return claimed, err
}

// Succeed marks job as succeeded.
func Succeed(db *gorm.DB, jobID uuid.UUID) error {
	return db.Model(&store.Job{}).Where("id = ?", jobID).
		Updates(map[string]any{"state": store.JobSucceeded, "last_error": ""}).Error
}

// Fail records reason against job and either requeues it with exponential
// backoff (attempts < max_attempts) or leaves it failed (spec.md §4.10).
func Fail(db *gorm.DB, jobID uuid.UUID, reason string, cfg Config, now time.Time) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var job store.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, "id = ?", jobID).Error; err != nil {
			return err
		}
		job.Attempts++
		job.LastError = reason
		if job.Attempts < cfg.MaxAttempts {
			job.State = store.JobQueued
			job.NotBefore = now.Add(backoff(cfg, job.Attempts))
		} else {
			job.State = store.JobFailed
		}
		return tx.Save(&job).Error
	})
}

// backoff computes base * factor^(attempt-1), spec.md §4.10's "base 10s,
// factor 2" policy.
func backoff(cfg Config, attempt int) time.Duration {
	multiplier := math.Pow(cfg.BackoffFactor, float64(attempt-1))
	return time.Duration(float64(cfg.BackoffBase) * multiplier)
}

// CancelForCase transitions every non-terminal job for caseID to cancelled
// (spec.md §4.10: triggered by case deletion or an explicit cancel).
func CancelForCase(db *gorm.DB, caseID uuid.UUID) error {
	return db.Model(&store.Job{}).
		Where("case_id = ? AND state IN ?", caseID, []store.JobState{store.JobQueued, store.JobRunning}).
		Update("state", store.JobCancelled).Error
}

// IsCancelled reports whether jobID has since been marked cancelled.
// Handlers must check this before committing side effects once they pass
// a suspension point (spec.md §5).
func IsCancelled(db *gorm.DB, jobID uuid.UUID) (bool, error) {
	var job store.Job
	if err := db.Select("state").First(&job, "id = ?", jobID).Error; err != nil {
		return false, err
	}
	return job.State == store.JobCancelled, nil
}

// Progress is the per-kind, per-state count view spec.md §4.10 requires.
type Progress struct {
	CaseID uuid.UUID
	Counts map[store.JobKind]map[store.JobState]int
}

// ProgressForCase aggregates counts by kind x state for caseID.
func ProgressForCase(db *gorm.DB, caseID uuid.UUID) (*Progress, error) {
	var jobList []store.Job
	if err := db.Where("case_id = ?", caseID).Find(&jobList).Error; err != nil {
		return nil, err
	}
	counts := make(map[store.JobKind]map[store.JobState]int)
	for _, j := range jobList {
		if counts[j.Kind] == nil {
			counts[j.Kind] = make(map[store.JobState]int)
		}
		counts[j.Kind][j.State]++
	}
	return &Progress{CaseID: caseID, Counts: counts}, nil
}

// allDocumentJobsTerminal reports whether every OCR/classify/extract job
// for caseID that is still queued or running belongs to a Document that has
// already reached a terminal status (EXTRACTED or FAILED), the condition
// that fans out a single cascade job (spec.md §4.10, §5). The job calling
// it is still running, so its Document's status decides.
func allDocumentJobsTerminal(db *gorm.DB, caseID uuid.UUID) (bool, error) {
	var pending []store.Job
	err := db.Model(&store.Job{}).
		Where("case_id = ? AND kind IN ? AND state IN ?",
			caseID,
			[]store.JobKind{store.JobKindOCR, store.JobKindClassify, store.JobKindExtract},
			[]store.JobState{store.JobQueued, store.JobRunning}).
		Find(&pending).Error
	if err != nil {
		return false, err
	}
	for _, j := range pending {
		var payload documentJobPayload
		var doc store.Document
		if json.Unmarshal(j.Payload, &payload) != nil ||
			db.First(&doc, "id = ?", payload.DocumentID).Error != nil || !doc.Status.IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}

// EnqueueCascade enqueues a single cascade job for caseID if one is not
// already pending, avoiding the thundering-herd fan-in spec.md §4.10 warns
// about when many documents finish extraction close together.
func EnqueueCascade(db *gorm.DB, caseID uuid.UUID, now time.Time) error {
	var existing int64
	err := db.Model(&store.Job{}).
		Where("case_id = ? AND kind = ? AND state IN ?", caseID, store.JobKindCascade,
			[]store.JobState{store.JobQueued, store.JobRunning}).
		Count(&existing).Error
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	_, err = Enqueue(db, store.JobKindCascade, caseID, map[string]any{}, now)
	return err
}

// MaybeCascade enqueues the cascade job only once every document-level job
// for the case is terminal.
func MaybeCascade(db *gorm.DB, caseID uuid.UUID, now time.Time) error {
	ready, err := allDocumentJobsTerminal(db, caseID)
	if err != nil || !ready {
		return err
	}
	return EnqueueCascade(db, caseID, now)
}

// Handler processes one job's payload. Implementations must check
// cancellation before any side-effecting commit (spec.md §5).
type Handler func(ctx context.Context, db *gorm.DB, job *store.Job) error

// Dispatcher maps a JobKind to its handler.
type Dispatcher map[store.JobKind]Handler
