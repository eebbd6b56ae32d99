package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/pricewatch/pkg/factquery"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

const apiKeyColumns = `id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("encode job parameters: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO watchlist_jobs (id, tenant_id, type, status, progress, current_step, parameters, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.TenantID, job.Type, job.Status, job.Progress, job.CurrentStep, params,
		job.CreatedBy, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	var (
		j       models.Job
		params  []byte
		summary []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, type, status, progress, current_step, total_items, processed_items,
		        parameters, result_summary, error_message, created_by, started_at, completed_at, created_at, updated_at
		 FROM watchlist_jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&j.ID, &j.TenantID, &j.Type, &j.Status, &j.Progress, &j.CurrentStep, &j.TotalItems, &j.ProcessedItems,
		&params, &summary, &j.ErrorMessage, &j.CreatedBy, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := json.Unmarshal(params, &j.Parameters); err != nil {
		return nil, fmt.Errorf("decode job parameters: %w", err)
	}
	if summary != nil {
		j.ResultSummary = &models.WatchlistSummary{}
		if err := json.Unmarshal(summary, j.ResultSummary); err != nil {
			return nil, fmt.Errorf("decode job summary: %w", err)
		}
	}
	return &j, nil
}

// GetJobResult returns nil without error when the job exists but has stored no result.
func (s *PostgresStore) GetJobResult(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.WatchlistResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result_data FROM watchlist_jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var result models.WatchlistResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM watchlist_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

func (s *PostgresStore) TryTransition(ctx context.Context, id uuid.UUID, from []string, to string, opts ...JobUpdateOption) (bool, error) {
	if err := checkTransitions(from, to); err != nil {
		return false, err
	}
	params := applyOptions(opts)

	now := time.Now().UTC()
	query := `UPDATE watchlist_jobs SET status = $3, updated_at = $4`
	args := []any{id, from, to, now}
	argIdx := 5

	if to == models.JobStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if models.IsTerminalStatus(to) {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if to == models.JobStatusCompleted {
		query += ", progress = 100"
	}
	if params.Step != nil {
		query += fmt.Sprintf(", current_step = $%d", argIdx)
		args = append(args, *params.Step)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Result != nil {
		data, err := json.Marshal(params.Result)
		if err != nil {
			return false, fmt.Errorf("encode job result: %w", err)
		}
		summary, err := json.Marshal(params.Summary)
		if err != nil {
			return false, fmt.Errorf("encode job summary: %w", err)
		}
		query += fmt.Sprintf(", result_data = $%d, result_summary = $%d, total_items = $%d, processed_items = $%d",
			argIdx, argIdx+1, argIdx+2, argIdx+3)
		args = append(args, data, summary, params.Result.Total, params.Result.Total)
	}

	query += " WHERE id = $1 AND status = ANY($2)"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job to %s: %w", to, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id uuid.UUID, p Progress) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE watchlist_jobs
		 SET progress = $2, current_step = $3, processed_items = $4, total_items = $5, updated_at = NOW()
		 WHERE id = $1 AND status = 'running'`,
		id, p.Percent, p.Step, p.Processed, p.Total)
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Facts ---

// The window length is always $1 so the per-window sums can reference it.
const factSelect = `
SELECT c.base_col, c.descripcion, c.categoria, c.genero, c.marca, c.banda_precio,
       c.precio_actual::float8, c.costo_prom::float8, c.stock_on_hand::float8, c.stock_pendiente::float8,
       COALESCE(SUM(s.units) FILTER (WHERE s.fecha > CURRENT_DATE - 7), 0)::float8,
       COALESCE(SUM(s.units) FILTER (WHERE s.fecha > CURRENT_DATE - 14), 0)::float8,
       COALESCE(SUM(s.units) FILTER (WHERE s.fecha > CURRENT_DATE - 28), 0)::float8,
       COALESCE(SUM(s.units) FILTER (WHERE s.fecha > CURRENT_DATE - $1::int), 0)::float8,
       COALESCE(SUM(s.units) FILTER (WHERE s.fecha >= c.fecha_inicio), 0)::float8,
       GREATEST(CURRENT_DATE - c.fecha_inicio, 0),
       c.ritmo_cluster,
       c.flag_lanzamiento_prematuro, c.flag_desacelerando, c.flag_sobrestock, c.flag_sin_traccion,
       c.score
FROM sku_catalog c
LEFT JOIN sku_sales_daily s ON s.base_col = c.base_col`

func (s *PostgresStore) ListWatchlistRows(ctx context.Context, params models.WatchlistParams) ([]models.WatchlistRow, error) {
	var b factquery.Builder
	b.Arg(params.RitmoVentanaDias)
	join := storeFilter(&b, params.Tiendas)

	b.In("c.marca", params.Marcas)
	b.In("c.categoria", params.Categorias)
	b.In("c.genero", params.Generos)
	b.Search([]string{"c.base_col", "c.descripcion"}, params.Search)
	b.Between("c.fecha_inicio", params.Desde, params.Hasta)

	query := factSelect + join + "\n" + b.Clause() + "\nGROUP BY c.base_col\nORDER BY c.base_col"
	rows, err := s.pool.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list watchlist rows: %w", err)
	}
	defer rows.Close()

	var out []models.WatchlistRow
	for rows.Next() {
		r, err := scanWatchlistRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list watchlist rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetSKURow(ctx context.Context, baseCol string, windowDays int) (*models.WatchlistRow, error) {
	var b factquery.Builder
	b.Arg(windowDays)
	b.Where("c.base_col = " + b.Arg(baseCol))

	query := factSelect + "\n" + b.Clause() + "\nGROUP BY c.base_col"
	r, err := scanWatchlistRow(s.pool.QueryRow(ctx, query, b.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetClusterElasticity(ctx context.Context, cluster models.Cluster) (*models.Elasticity, error) {
	var e models.Elasticity
	err := s.pool.QueryRow(ctx,
		`SELECT value, confidence, observations FROM cluster_elasticity
		 WHERE LOWER(categoria) = LOWER($1) AND LOWER(genero) = LOWER($2)
		   AND LOWER(marca) = LOWER($3) AND LOWER(banda_precio) = LOWER($4)`,
		cluster.Categoria, cluster.Genero, cluster.Marca, cluster.BandaPrecio,
	).Scan(&e.Value, &e.Confidence, &e.Observations)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster elasticity: %w", err)
	}
	return &e, nil
}

// storeFilter restricts the sales join, not the catalog, so SKUs with no sales in
// the selected stores still appear with zero units.
func storeFilter(b *factquery.Builder, tiendas []string) string {
	t := factquery.Normalize(tiendas)
	if len(t) == 0 {
		return ""
	}
	return " AND LOWER(s.tienda_id) = ANY(" + b.Arg(t) + ")"
}

func scanWatchlistRow(row pgx.Row) (models.WatchlistRow, error) {
	var r models.WatchlistRow
	err := row.Scan(&r.BaseCol, &r.Descripcion,
		&r.Cluster.Categoria, &r.Cluster.Genero, &r.Cluster.Marca, &r.Cluster.BandaPrecio,
		&r.PrecioActual, &r.CostoProm, &r.StockOnHand, &r.StockPendiente,
		&r.Units7d, &r.Units14d, &r.Units28d, &r.UnitsVentana, &r.UnitsDesdeInicio,
		&r.DiasDesdeInicio, &r.RitmoCluster,
		&r.Flags.LanzamientoPrematuro, &r.Flags.Desacelerando, &r.Flags.Sobrestock, &r.Flags.SinTraccion,
		&r.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan watchlist row: %w", err)
	}
	return r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
