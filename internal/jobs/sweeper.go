package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bindery/internal/config"
	"bindery/internal/metrics"
	"bindery/internal/model"
	"bindery/internal/queue"
)

// SweeperStore is the slice of the store the sweeper needs.
type SweeperStore interface {
	ListStalePendingJobs(ctx context.Context, cutoff time.Time, limit int32) ([]model.Job, error)
	DeleteExpiredJobsByType(ctx context.Context, jobType model.JobType, cutoff time.Time) (int64, error)
}

// Sweeper repairs jobs whose enqueue was lost between the row insert and
// the queue push, and deletes terminal jobs past their retention TTL.
// Workers deduplicate by job id, so re-enqueueing a job whose queue item
// still exists is harmless.
type Sweeper struct {
	cfg    *config.Config
	store  SweeperStore
	queue  queue.Dispatcher
	logger *slog.Logger
}

func NewSweeper(cfg *config.Config, st SweeperStore, q queue.Dispatcher, logger *slog.Logger) *Sweeper {
	return &Sweeper{cfg: cfg, store: st, queue: q, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled. Callers typically run
// this in its own goroutine and keep the process alive.
func (s *Sweeper) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.Sweeper.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.Sweep(ctx)
	}
}

// Sweep performs one pass: requeue stale PENDING jobs, then apply
// retention TTLs.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.requeueStale(ctx)
	s.cleanupExpired(ctx)
}

func (s *Sweeper) requeueStale(ctx context.Context) {
	after := time.Duration(s.cfg.Sweeper.PendingRequeueAfterMinutes) * time.Minute
	if after <= 0 {
		after = 15 * time.Minute
	}
	cutoff := time.Now().UTC().Add(-after)

	stale, err := s.store.ListStalePendingJobs(ctx, cutoff, 100)
	if err != nil {
		s.logger.Error("stale_jobs_lookup_failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	var requeued int64
	for _, job := range stale {
		name, payload, priority, err := workItemFor(job)
		if err != nil {
			s.logger.Warn("stale_job_rebuild_failed", "job_id", job.ID.String(), "error", err)
			continue
		}
		if err := s.queue.Enqueue(ctx, name, payload, priority); err != nil {
			s.logger.Warn("stale_job_requeue_failed", "job_id", job.ID.String(), "error", err)
			continue
		}
		requeued++
	}

	if requeued > 0 {
		metrics.RecordSweeperRequeued(requeued)
		s.logger.Info("stale_jobs_requeued", "count", requeued, "cutoff", cutoff)
	}
}

func (s *Sweeper) cleanupExpired(ctx context.Context) {
	ttl := s.cfg.Sweeper.Retention
	now := time.Now().UTC()

	effectiveDays := func(specific int) int {
		if specific > 0 {
			return specific
		}
		return ttl.DefaultDays
	}

	apply := func(jobType model.JobType, days int) {
		if days <= 0 {
			return
		}
		cutoff := now.AddDate(0, 0, -days)
		if n, err := s.store.DeleteExpiredJobsByType(ctx, jobType, cutoff); err == nil && n > 0 {
			metrics.RecordRetentionJobs(string(jobType), n)
			s.logger.Info("expired_jobs_deleted", "job_type", jobType, "count", n)
		}
	}

	apply(model.JobTypeValidate, effectiveDays(ttl.ValidateDays))
	apply(model.JobTypeConvert, effectiveDays(ttl.ConvertDays))
	apply(model.JobTypeSynthesize, effectiveDays(ttl.SynthesizeDays))
}

// workItemFor rebuilds the queue payload for a persisted job from its
// stored options, mirroring what the producer originally enqueued.
func workItemFor(job model.Job) (string, any, queue.Priority, error) {
	switch job.Type {
	case model.JobTypeValidate:
		var opts ValidationOptions
		if err := json.Unmarshal(job.Options, &opts); err != nil {
			return "", nil, "", fmt.Errorf("decode validation options: %w", err)
		}
		return queue.Validation, ValidationWork{
			JobID:        job.ID,
			FileID:       job.FileID,
			FileURL:      job.InputFileURL,
			FileType:     opts.FileType,
			OrderOptions: opts.Order,
		}, "", nil
	case model.JobTypeConvert:
		return queue.Conversion, ConversionWork{
			JobID:   job.ID,
			FileID:  job.FileID,
			FileURL: job.InputFileURL,
			Options: job.Options,
		}, "", nil
	case model.JobTypeSynthesize:
		var opts SynthesisOptions
		if err := json.Unmarshal(job.Options, &opts); err != nil {
			return "", nil, "", fmt.Errorf("decode synthesis options: %w", err)
		}
		return queue.Synthesis, SynthesisWork{
			JobID:      job.ID,
			CoverURL:   opts.CoverURL,
			ContentURL: opts.ContentURL,
			SpineWidth: opts.SpineWidth,
			OrderID:    opts.OrderID,
		}, queue.ParsePriority(opts.Priority), nil
	}
	return "", nil, "", fmt.Errorf("unknown job type %q", job.Type)
}
