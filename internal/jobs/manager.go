// Package jobs runs watchlist scans as background jobs. Every status change goes
// through the store's compare-and-swap transition, so a worker, a cancel request and
// a shutdown can race without corrupting a job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/cache"
	"github.com/kiranshivaraju/pricewatch/internal/pager"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/internal/validate"
	"github.com/kiranshivaraju/pricewatch/internal/velocity"
	"github.com/kiranshivaraju/pricewatch/internal/watchlist"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// Steps reported in currentStep.
const (
	StepQueued      = "queued"
	StepLoading     = "loading facts"
	StepClassifying = "classifying"
	StepAggregating = "aggregating"
	StepCompleted   = "completed"
	StepFailed      = "failed"
	StepCancelled   = "cancelled"
)

const defaultStatusTTL = 30 * time.Minute

// Config tunes the worker.
type Config struct {
	BatchSize  int
	WindowDays int
	CycleDays  int
	Thresholds velocity.Thresholds
	// StatusTTL bounds how long the cache mirror of a job status lives.
	StatusTTL time.Duration
	// ClaimRetryDelay is the pause between attempts to mark a job running.
	ClaimRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:  50,
		WindowDays: 14,
		CycleDays:  90,
		Thresholds: velocity.DefaultThresholds(),
		StatusTTL:  defaultStatusTTL,

		ClaimRetryDelay: 200 * time.Millisecond,
	}
}

// Manager submits, inspects and cancels watchlist jobs and owns their workers.
type Manager struct {
	store      store.JobStore
	facts      store.FactSource
	cache      cache.Cache
	classifier watchlist.Classifier
	registry   *Registry
	cfg        Config
	now        func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager. c may be nil, in which case no status mirror is kept.
func NewManager(js store.JobStore, facts store.FactSource, c cache.Cache, classifier watchlist.Classifier, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.CycleDays <= 0 {
		cfg.CycleDays = def.CycleDays
	}
	if cfg.Thresholds == (velocity.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = def.StatusTTL
	}
	if cfg.ClaimRetryDelay <= 0 {
		cfg.ClaimRetryDelay = def.ClaimRetryDelay
	}
	if classifier == nil {
		classifier = watchlist.FlagClassifier{}
	}
	return &Manager{
		store:      js,
		facts:      facts,
		cache:      c,
		classifier: classifier,
		registry:   NewRegistry(),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a pending job and starts its worker. It returns without waiting
// for the scan.
func (m *Manager) Submit(ctx context.Context, tenantID uuid.UUID, params models.WatchlistParams, createdBy *string) (*models.Job, error) {
	if params.RitmoVentanaDias == 0 {
		params.RitmoVentanaDias = m.cfg.WindowDays
	}
	if params.CycleDays == 0 {
		params.CycleDays = m.cfg.CycleDays
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	now := m.now()
	job := &models.Job{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        models.JobTypeWatchlist,
		Status:      models.JobStatusPending,
		CurrentStep: StepQueued,
		Parameters:  params,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("creating job: %w", err)
	}
	m.mirror(ctx, job.ID, models.JobStatusPending)

	workerCtx, release := m.registry.Register(job.ID)
	go m.run(workerCtx, release, job)

	slog.Info("watchlist job submitted", "job_id", job.ID, "tenant_id", tenantID)
	return job, nil
}

func validateParams(p models.WatchlistParams) error {
	fields, err := validate.Fields(p)
	if err != nil {
		return fmt.Errorf("validating job parameters: %w", err)
	}
	if p.Desde != nil && p.Hasta != nil && p.Desde.After(*p.Hasta) {
		fields = append(fields, "desde")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// StatusView is the polled status of a job.
type StatusView struct {
	ID             uuid.UUID  `json:"id"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	CurrentStep    string     `json:"currentStep"`
	TotalItems     int        `json:"totalItems"`
	ProcessedItems int        `json:"processedItems"`
	ErrorMessage   *string    `json:"errorMessage"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt"`
	ElapsedSeconds *float64   `json:"elapsedSeconds"`
}

func (m *Manager) Status(ctx context.Context, id, tenantID uuid.UUID) (*StatusView, error) {
	job, err := m.getJob(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}

	v := &StatusView{
		ID:             job.ID,
		Status:         job.Status,
		Progress:       job.Progress,
		CurrentStep:    job.CurrentStep,
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
	if job.StartedAt != nil {
		end := m.now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		elapsed := end.Sub(*job.StartedAt).Seconds()
		v.ElapsedSeconds = &elapsed
	}
	return v, nil
}

// Cancel moves a pending or running job to cancelled. A job in any other status
// is left untouched and reported with an *InvalidStateError.
func (m *Manager) Cancel(ctx context.Context, id, tenantID uuid.UUID) error {
	job, err := m.getJob(ctx, id, tenantID)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(job.Status) {
		return &InvalidStateError{Status: job.Status}
	}

	ok, err := m.store.TryTransition(ctx, id,
		[]string{models.JobStatusPending, models.JobStatusRunning}, models.JobStatusCancelled,
		store.WithStep(StepCancelled))
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}
	if !ok {
		// The worker finished between the read and the update.
		status, err := m.store.GetJobStatus(ctx, id)
		if err != nil {
			return fmt.Errorf("reading job status: %w", err)
		}
		return &InvalidStateError{Status: status}
	}

	m.registry.MarkCancelled(id)
	m.mirror(ctx, id, models.JobStatusCancelled)
	slog.Info("watchlist job cancelled", "job_id", id, "tenant_id", tenantID, "previous_status", job.Status)
	return nil
}

// ResultsView is one page of a completed job's ranked items.
type ResultsView struct {
	JobID uuid.UUID `json:"jobId"`
	pager.Page
	Summary       *models.WatchlistSummary `json:"resultSummary"`
	CompletedAt   *time.Time               `json:"completedAt"`
	SortColumn    string                   `json:"sortColumn"`
	SortDirection string                   `json:"sortDirection"`
}

// Results sorts the stored items of a completed job and returns the requested page.
func (m *Manager) Results(ctx context.Context, id, tenantID uuid.UUID, req pager.Request) (*ResultsView, error) {
	job, err := m.getJob(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, &InvalidStateError{Status: job.Status}
	}

	result, err := m.store.GetJobResult(ctx, id, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading job result: %w", err)
	}
	var items []models.WatchlistItem
	if result != nil {
		items = result.Items
	}

	req = req.Normalize()
	sorted := pager.Sort(items, req.SortColumn, req.SortDirection)
	return &ResultsView{
		JobID:         id,
		Page:          pager.Paginate(sorted, req),
		Summary:       job.ResultSummary,
		CompletedAt:   job.CompletedAt,
		SortColumn:    req.SortColumn,
		SortDirection: req.SortDirection,
	}, nil
}

// Shutdown stops accepting jobs, interrupts running workers and waits for them
// to record their final status or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.registry.Close()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (m *Manager) getJob(ctx context.Context, id, tenantID uuid.UUID) (*models.Job, error) {
	job, err := m.store.GetJob(ctx, id, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	return job, nil
}

// mirror copies a status to the cache. Failures only cost the fast path.
func (m *Manager) mirror(ctx context.Context, id uuid.UUID, status string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SetJobStatus(ctx, id, status, m.cfg.StatusTTL); err != nil {
		slog.Warn("mirroring job status", "job_id", id, "status", status, "error", err)
	}
}
