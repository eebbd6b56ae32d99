package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/pkg/factquery"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// MemoryStore is an in-process Store backed by maps. Fact rows are precomputed, so
// the date range and store filters are not applied to them.
type MemoryStore struct {
	mu           sync.Mutex
	tenant       models.Tenant
	keys         map[uuid.UUID]*models.APIKey
	jobs         map[uuid.UUID]*models.Job
	rows         []models.WatchlistRow
	elasticities map[models.Cluster]models.Elasticity

	// ListErr, when set, is returned by ListWatchlistRows.
	ListErr error
	// BeforeList runs at the start of ListWatchlistRows, outside the lock.
	BeforeList func(ctx context.Context)
}

// NewMemoryStore creates a MemoryStore with a default tenant.
func NewMemoryStore() *MemoryStore {
	now := time.Now().UTC()
	return &MemoryStore{
		tenant:       models.Tenant{ID: uuid.New(), Name: "default", CreatedAt: now, UpdatedAt: now},
		keys:         make(map[uuid.UUID]*models.APIKey),
		jobs:         make(map[uuid.UUID]*models.Job),
		elasticities: make(map[models.Cluster]models.Elasticity),
	}
}

// SetRows replaces the fact rows.
func (m *MemoryStore) SetRows(rows []models.WatchlistRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = slices.Clone(rows)
}

// SetElasticity stores the estimate for a cluster.
func (m *MemoryStore) SetElasticity(c models.Cluster, e models.Elasticity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elasticities[normalizeCluster(c)] = e
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// --- Tenants and keys ---

func (m *MemoryStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	t := m.tenant
	return &t, nil
}

func (m *MemoryStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k, ok := m.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (m *MemoryStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.TenantID == key.TenantID && k.Name == key.Name {
			return ErrDuplicateKey
		}
	}
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *MemoryStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.APIKey
	for _, k := range m.keys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.APIKey) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

// --- Jobs ---

func (m *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	c := *job
	m.jobs[job.ID] = &c
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, ErrNotFound
	}
	c := *j
	c.ResultData = nil
	return &c, nil
}

func (m *MemoryStore) GetJobResult(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.WatchlistResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return j.ResultData, nil
}

func (m *MemoryStore) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return "", ErrNotFound
	}
	return j.Status, nil
}

func (m *MemoryStore) TryTransition(ctx context.Context, id uuid.UUID, from []string, to string, opts ...JobUpdateOption) (bool, error) {
	if err := checkTransitions(from, to); err != nil {
		return false, err
	}
	params := applyOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || !slices.Contains(from, j.Status) {
		return false, nil
	}

	now := time.Now().UTC()
	j.Status = to
	j.UpdatedAt = now
	if to == models.JobStatusRunning {
		j.StartedAt = &now
	}
	if models.IsTerminalStatus(to) {
		j.CompletedAt = &now
	}
	if to == models.JobStatusCompleted {
		j.Progress = 100
	}
	if params.Step != nil {
		j.CurrentStep = *params.Step
	}
	if params.ErrorMessage != nil {
		j.ErrorMessage = params.ErrorMessage
	}
	if params.Result != nil {
		j.ResultData = params.Result
		j.ResultSummary = params.Summary
		j.TotalItems = params.Result.Total
		j.ProcessedItems = params.Result.Total
	}
	return true, nil
}

func (m *MemoryStore) UpdateProgress(ctx context.Context, id uuid.UUID, p Progress) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusRunning {
		return false, nil
	}
	j.Progress = p.Percent
	j.CurrentStep = p.Step
	j.ProcessedItems = p.Processed
	j.TotalItems = p.Total
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}

// --- Facts ---

func (m *MemoryStore) ListWatchlistRows(ctx context.Context, params models.WatchlistParams) ([]models.WatchlistRow, error) {
	if m.BeforeList != nil {
		m.BeforeList(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	marcas := factquery.Normalize(params.Marcas)
	categorias := factquery.Normalize(params.Categorias)
	generos := factquery.Normalize(params.Generos)
	search := strings.ToLower(strings.TrimSpace(params.Search))

	var out []models.WatchlistRow
	for _, r := range m.rows {
		if !matches(marcas, r.Cluster.Marca) || !matches(categorias, r.Cluster.Categoria) || !matches(generos, r.Cluster.Genero) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.BaseCol), search) &&
			!strings.Contains(strings.ToLower(r.Descripcion), search) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.WatchlistRow) int { return strings.Compare(a.BaseCol, b.BaseCol) })
	return out, nil
}

func (m *MemoryStore) GetSKURow(ctx context.Context, baseCol string, windowDays int) (*models.WatchlistRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.BaseCol == baseCol {
			c := r
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetClusterElasticity(ctx context.Context, cluster models.Cluster) (*models.Elasticity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.elasticities[normalizeCluster(cluster)]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func matches(allowed []string, v string) bool {
	return len(allowed) == 0 || slices.Contains(allowed, strings.ToLower(strings.TrimSpace(v)))
}

func normalizeCluster(c models.Cluster) models.Cluster {
	return models.Cluster{
		Categoria:   strings.ToLower(c.Categoria),
		Genero:      strings.ToLower(c.Genero),
		Marca:       strings.ToLower(c.Marca),
		BandaPrecio: strings.ToLower(c.BandaPrecio),
	}
}
