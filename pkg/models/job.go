package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// JobTypeWatchlist is the only job type the worker knows how to run.
const JobTypeWatchlist = "watchlist"

// IsTerminalStatus reports whether a job in this status can no longer change.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job tracks a watchlist scan. POST /api/v1/watchlist/jobs returns the id while the job
// is still pending; the client polls GET /api/v1/watchlist/jobs/{jobID} until it reaches
// a terminal status and then pages through the results.
type Job struct {
	ID             uuid.UUID         `db:"id"              json:"id"`
	TenantID       uuid.UUID         `db:"tenant_id"       json:"tenantId"`
	Type           string            `db:"type"            json:"type"`
	Status         string            `db:"status"          json:"status"`
	Progress       int               `db:"progress"        json:"progress"`
	CurrentStep    string            `db:"current_step"    json:"currentStep"`
	TotalItems     int               `db:"total_items"     json:"totalItems"`
	ProcessedItems int               `db:"processed_items" json:"processedItems"`
	Parameters     WatchlistParams   `db:"parameters"      json:"parameters"`
	ResultData     *WatchlistResult  `db:"result_data"     json:"resultData,omitempty"`
	ResultSummary  *WatchlistSummary `db:"result_summary"  json:"resultSummary,omitempty"`
	ErrorMessage   *string           `db:"error_message"   json:"errorMessage,omitempty"`
	CreatedBy      *string           `db:"created_by"      json:"createdBy,omitempty"`
	StartedAt      *time.Time        `db:"started_at"      json:"startedAt,omitempty"`
	CompletedAt    *time.Time        `db:"completed_at"    json:"completedAt,omitempty"`
	CreatedAt      time.Time         `db:"created_at"      json:"createdAt"`
	UpdatedAt      time.Time         `db:"updated_at"      json:"updatedAt"`
}
