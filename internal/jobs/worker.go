package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/internal/watchlist"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// Progress percentages around the per-batch range.
const (
	progressLoaded     = 10
	progressBatchSpan  = 80
	progressAggregated = 95
)

const claimAttempts = 3

// run executes one job. ctx ends on cancel or shutdown; store writes use a
// detached context so the final status is always recorded.
func (m *Manager) run(ctx context.Context, release func(), job *models.Job) {
	defer m.wg.Done()
	defer release()

	log := slog.With("job_id", job.ID, "tenant_id", job.TenantID)
	bg := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in watchlist worker", "error", r)
			m.fail(bg, log, job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	ok, err := m.claim(ctx, bg, log, job.ID)
	if err != nil {
		log.Error("claiming job", "error", err)
		return
	}
	if !ok {
		log.Info("job is no longer pending, not starting")
		return
	}
	m.mirror(bg, job.ID, models.JobStatusRunning)
	log.Info("watchlist job started")

	if m.shouldStop(ctx, bg, log, job.ID) {
		return
	}

	rows, err := m.facts.ListWatchlistRows(ctx, job.Parameters)
	if err != nil {
		if m.shouldStop(ctx, bg, log, job.ID) {
			return
		}
		log.Error("loading watchlist facts", "error", err)
		m.fail(bg, log, job.ID, fmt.Sprintf("loading facts: %v", err))
		return
	}

	total := len(rows)
	if !m.report(bg, log, job.ID, store.Progress{Percent: progressLoaded, Step: StepClassifying, Total: total}) {
		return
	}

	agg := watchlist.NewAggregator(m.classifier, watchlist.Options{
		WindowDays: job.Parameters.RitmoVentanaDias,
		CycleDays:  job.Parameters.CycleDays,
		Thresholds: m.cfg.Thresholds,
	})
	for _, batch := range watchlist.Batches(rows, m.cfg.BatchSize) {
		if m.shouldStop(ctx, bg, log, job.ID) {
			return
		}
		agg.Add(batch)

		processed := agg.Processed()
		p := store.Progress{
			Percent:   progressLoaded + progressBatchSpan*processed/total,
			Step:      StepClassifying,
			Processed: processed,
			Total:     total,
		}
		if !m.report(bg, log, job.ID, p) {
			return
		}
	}

	result, summary := agg.Result()
	if !m.report(bg, log, job.ID, store.Progress{Percent: progressAggregated, Step: StepAggregating, Processed: total, Total: total}) {
		return
	}

	ok, err = m.store.TryTransition(bg, job.ID, []string{models.JobStatusRunning}, models.JobStatusCompleted,
		store.WithResult(result, summary), store.WithStep(StepCompleted))
	if err != nil {
		log.Error("completing job", "error", err)
		m.fail(bg, log, job.ID, fmt.Sprintf("storing result: %v", err))
		return
	}
	if !ok {
		log.Info("job changed state before completion, result discarded")
		return
	}
	m.mirror(bg, job.ID, models.JobStatusCompleted)
	log.Info("watchlist job completed", "items", result.Total, "skipped_rows", agg.Skipped())
}

// claim moves the job from pending to running. Store errors are retried up to
// claimAttempts times with a fixed delay; the job stays pending if all fail.
func (m *Manager) claim(ctx, bg context.Context, log *slog.Logger, id uuid.UUID) (bool, error) {
	var err error
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		var ok bool
		ok, err = m.store.TryTransition(bg, id, []string{models.JobStatusPending}, models.JobStatusRunning,
			store.WithStep(StepLoading))
		if err == nil {
			return ok, nil
		}
		if attempt == claimAttempts {
			break
		}
		log.Warn("claiming job failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("claim interrupted: %w", err)
		case <-time.After(m.cfg.ClaimRetryDelay):
		}
	}
	return false, err
}

// shouldStop reports whether the worker has to abandon the job. The local registry
// and the cache are consulted before the store; only a store read is authoritative.
// A shutdown interruption is recorded as a failure so no job stays running.
func (m *Manager) shouldStop(ctx, bg context.Context, log *slog.Logger, id uuid.UUID) bool {
	if ctx.Err() != nil || m.registry.IsCancelled(id) {
		if shutdownRequested(ctx) && !m.registry.IsCancelled(id) {
			log.Warn("watchlist job interrupted by shutdown")
			m.fail(bg, log, id, errShutdown.Error())
			return true
		}
		log.Info("watchlist job cancelled, stopping")
		return true
	}

	if m.cache != nil {
		status, found, err := m.cache.GetJobStatus(bg, id)
		if err == nil && found && status == models.JobStatusCancelled {
			log.Info("watchlist job cancelled, stopping")
			return true
		}
	}

	status, err := m.store.GetJobStatus(bg, id)
	if err != nil {
		log.Warn("checking job status", "error", err)
		return false
	}
	if status != models.JobStatusRunning {
		log.Info("watchlist job left running state, stopping", "status", status)
		return true
	}
	return false
}

// report writes progress. false means the job is no longer running and the
// worker must stop; a failed write is logged and ignored.
func (m *Manager) report(bg context.Context, log *slog.Logger, id uuid.UUID, p store.Progress) bool {
	ok, err := m.store.UpdateProgress(bg, id, p)
	if err != nil {
		log.Warn("updating job progress", "error", err)
		return true
	}
	if !ok {
		log.Info("job state changed under worker, stopping")
	}
	return ok
}

func (m *Manager) fail(bg context.Context, log *slog.Logger, id uuid.UUID, msg string) {
	ok, err := m.store.TryTransition(bg, id, []string{models.JobStatusRunning}, models.JobStatusFailed,
		store.WithErrorMessage(msg), store.WithStep(StepFailed))
	if err != nil {
		log.Error("marking job failed", "error", err)
		return
	}
	if ok {
		m.mirror(bg, id, models.JobStatusFailed)
	}
}
