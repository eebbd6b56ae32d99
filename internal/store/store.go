package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the full data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	KeyStore
	JobStore
	FactSource
}

// KeyStore holds tenants and API keys.
type KeyStore interface {
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// JobStore persists watchlist jobs. Every status change is a compare-and-swap:
// TryTransition reports false, without error, when the job's current status is
// not among from.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob loads everything except the result items.
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error)
	GetJobResult(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.WatchlistResult, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (string, error)
	TryTransition(ctx context.Context, id uuid.UUID, from []string, to string, opts ...JobUpdateOption) (bool, error)
	// UpdateProgress applies only while the job is running.
	UpdateProgress(ctx context.Context, id uuid.UUID, p Progress) (bool, error)
}

// FactSource reads the upstream sales, stock and elasticity facts.
type FactSource interface {
	ListWatchlistRows(ctx context.Context, params models.WatchlistParams) ([]models.WatchlistRow, error)
	GetSKURow(ctx context.Context, baseCol string, windowDays int) (*models.WatchlistRow, error)
	GetClusterElasticity(ctx context.Context, cluster models.Cluster) (*models.Elasticity, error)
}

// Progress is a worker progress report.
type Progress struct {
	Percent   int
	Step      string
	Processed int
	Total     int
}

var validTransitions = map[string][]string{
	models.JobStatusPending: {models.JobStatusRunning, models.JobStatusCancelled},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled},
}

// ValidTransition reports whether from -> to is an edge of the job state machine.
func ValidTransition(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func checkTransitions(from []string, to string) error {
	if len(from) == 0 {
		return errors.New("no source status given")
	}
	for _, f := range from {
		if !ValidTransition(f, to) {
			return errors.New("invalid job status transition: " + f + " -> " + to)
		}
	}
	return nil
}

type jobUpdateParams struct {
	ErrorMessage *string
	Step         *string
	Result       *models.WatchlistResult
	Summary      *models.WatchlistSummary
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithStep(step string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Step = &step
	}
}

// WithResult stores the ranked items and summary of a completed run.
func WithResult(result models.WatchlistResult, summary models.WatchlistSummary) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = &result
		p.Summary = &summary
	}
}

func applyOptions(opts []JobUpdateOption) *jobUpdateParams {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}
