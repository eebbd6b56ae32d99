package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pricewatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// defaultTenantID returns the UUID of the seeded default tenant.
func defaultTenantID(t *testing.T, s store.Store) uuid.UUID {
	t.Helper()
	tenant, err := s.GetDefaultTenant(context.Background())
	require.NoError(t, err)
	return tenant.ID
}

func newPendingJob(tenantID uuid.UUID) *models.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Job{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        models.JobTypeWatchlist,
		Status:      models.JobStatusPending,
		CurrentStep: "queued",
		Parameters:  models.WatchlistParams{Marcas: []string{"Acme"}, RitmoVentanaDias: 14, CycleDays: 90},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// seedFacts loads two SKUs. SKU-1 launched 20 days ago and sold 2 units yesterday in T1,
// 3 units ten days ago in T2 and 5 units on launch day in T1. SKU-2 has no sales.
func seedFacts(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO sku_catalog (base_col, descripcion, categoria, genero, marca, banda_precio,
		                         precio_actual, costo_prom, stock_on_hand, stock_pendiente, fecha_inicio,
		                         ritmo_cluster, flag_desacelerando, score)
		VALUES ('SKU-1', 'Zapatilla Runner', 'Calzado', 'Mujer', 'Acme', 'media',
		        100, 60, 40, 10, CURRENT_DATE - 20, 1.5, TRUE, 0.8),
		       ('SKU-2', 'Polera Basica', 'Vestuario', 'Hombre', 'Other', 'baja',
		        20, 8, 5, 0, CURRENT_DATE - 5, 0.5, FALSE, 0.1)`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO sku_sales_daily (base_col, tienda_id, fecha, units) VALUES
		('SKU-1', 'T1', CURRENT_DATE - 1, 2),
		('SKU-1', 'T2', CURRENT_DATE - 10, 3),
		('SKU-1', 'T1', CURRENT_DATE - 20, 5)`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO cluster_elasticity (categoria, genero, marca, banda_precio, value, confidence, observations)
		VALUES ('Calzado', 'Mujer', 'Acme', 'media', -1.4, 'media', 12)`)
	require.NoError(t, err)
}

// --- Tenant Tests ---

func TestGetDefaultTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	tenant, err := s.GetDefaultTenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", tenant.Name)
	assert.NotEqual(t, uuid.Nil, tenant.ID)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "pw_abcd",
		Scopes:    []string{"read", "write"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "pw_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"read", "write"}, keys[0].Scopes)

	keys, err = s.ListAPIKeys(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), TenantID: tenantID, Name: "revoke-me", KeyHash: "hash",
		KeyPrefix: "pw_revk", Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, tenantID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "pw_revk")
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = s.RevokeAPIKey(ctx, key.ID, tenantID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_DuplicateName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{
		ID: uuid.New(), TenantID: tenantID, Name: "ci", KeyHash: "h1", KeyPrefix: "pw_dup1",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	}))
	err := s.CreateAPIKey(ctx, &models.APIKey{
		ID: uuid.New(), TenantID: tenantID, Name: "ci", KeyHash: "h2", KeyPrefix: "pw_dup2",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	job := newPendingJob(tenantID)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, "queued", got.CurrentStep)
	assert.Equal(t, []string{"Acme"}, got.Parameters.Marcas)
	assert.Equal(t, 14, got.Parameters.RitmoVentanaDias)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.ResultSummary)

	status, err := s.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, status)
}

func TestJob_OtherTenantNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newPendingJob(defaultTenantID(t, s))
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetJobResult(ctx, job.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetJobStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_TransitionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	job := newPendingJob(tenantID)
	require.NoError(t, s.CreateJob(ctx, job))

	ok, err := s.TryTransition(ctx, job.ID, []string{models.JobStatusPending}, models.JobStatusRunning,
		store.WithStep("loading facts"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateProgress(ctx, job.ID, store.Progress{Percent: 40, Step: "classifying", Processed: 2, Total: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "classifying", got.CurrentStep)
	assert.NotNil(t, got.StartedAt)

	result := models.WatchlistResult{Items: []models.WatchlistItem{{BaseCol: "SKU-1", Motivo: []string{"sobrestock"}}}, Total: 1}
	summary := models.WatchlistSummary{TotalItems: 1, NormalCount: 1}
	ok, err = s.TryTransition(ctx, job.ID, []string{models.JobStatusRunning}, models.JobStatusCompleted,
		store.WithResult(result, summary))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 1, got.TotalItems)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ResultData)
	require.NotNil(t, got.ResultSummary)
	assert.Equal(t, 1, got.ResultSummary.NormalCount)

	res, err := s.GetJobResult(ctx, job.ID, tenantID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "SKU-1", res.Items[0].BaseCol)

	// Terminal: no further updates apply.
	ok, err = s.UpdateProgress(ctx, job.ID, store.Progress{Percent: 10})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.TryTransition(ctx, job.ID, []string{models.JobStatusRunning}, models.JobStatusFailed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJob_TransitionFailedStoresMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenantID := defaultTenantID(t, s)

	job := newPendingJob(tenantID)
	require.NoError(t, s.CreateJob(ctx, job))
	_, err := s.TryTransition(ctx, job.ID, []string{models.JobStatusPending}, models.JobStatusRunning)
	require.NoError(t, err)

	ok, err := s.TryTransition(ctx, job.ID, []string{models.JobStatusRunning}, models.JobStatusFailed,
		store.WithErrorMessage("fact source unavailable"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "fact source unavailable", *got.ErrorMessage)

	res, err := s.GetJobResult(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestJob_TransitionInvalidEdge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newPendingJob(defaultTenantID(t, s))
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.TryTransition(ctx, job.ID, []string{models.JobStatusPending}, models.JobStatusCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job status transition")
}

func TestJob_ConcurrentCancelWinsOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newPendingJob(defaultTenantID(t, s))
	require.NoError(t, s.CreateJob(ctx, job))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryTransition(ctx, job.ID,
				[]string{models.JobStatusPending, models.JobStatusRunning}, models.JobStatusCancelled)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	status, err := s.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, status)
}

// --- Fact Tests ---

func TestFacts_ListWatchlistRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	seedFacts(t, pool)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	rows, err := s.ListWatchlistRows(ctx, models.WatchlistParams{RitmoVentanaDias: 14, CycleDays: 90})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	r := rows[0]
	assert.Equal(t, "SKU-1", r.BaseCol)
	assert.Equal(t, "Calzado", r.Cluster.Categoria)
	assert.Equal(t, 100.0, r.PrecioActual)
	assert.Equal(t, 40.0, r.StockOnHand)
	assert.Equal(t, 2.0, r.Units7d)
	assert.Equal(t, 5.0, r.Units14d)
	assert.Equal(t, 10.0, r.Units28d)
	assert.Equal(t, 5.0, r.UnitsVentana)
	assert.Equal(t, 10.0, r.UnitsDesdeInicio)
	assert.Equal(t, 20, r.DiasDesdeInicio)
	assert.True(t, r.Flags.Desacelerando)
	assert.InDelta(t, 0.8, r.Score, 1e-9)

	assert.Equal(t, "SKU-2", rows[1].BaseCol)
	assert.Zero(t, rows[1].Units28d)
}

func TestFacts_ListWatchlistRowsFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	seedFacts(t, pool)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	rows, err := s.ListWatchlistRows(ctx, models.WatchlistParams{
		Marcas: []string{" acme "}, Tiendas: []string{"t1"}, RitmoVentanaDias: 14, CycleDays: 90,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Units14d)
	assert.Equal(t, 7.0, rows[0].Units28d)

	rows, err = s.ListWatchlistRows(ctx, models.WatchlistParams{Search: "polera", RitmoVentanaDias: 14, CycleDays: 90})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SKU-2", rows[0].BaseCol)

	since := time.Now().AddDate(0, 0, -10)
	rows, err = s.ListWatchlistRows(ctx, models.WatchlistParams{Desde: &since, RitmoVentanaDias: 14, CycleDays: 90})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SKU-2", rows[0].BaseCol)

	rows, err = s.ListWatchlistRows(ctx, models.WatchlistParams{Search: "100%_off", RitmoVentanaDias: 14, CycleDays: 90})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFacts_GetSKURow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	seedFacts(t, pool)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	r, err := s.GetSKURow(ctx, "SKU-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.UnitsVentana)

	_, err = s.GetSKURow(ctx, "missing", 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFacts_GetClusterElasticity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	seedFacts(t, pool)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	e, err := s.GetClusterElasticity(ctx, models.Cluster{Categoria: "calzado", Genero: "MUJER", Marca: "Acme", BandaPrecio: "media"})
	require.NoError(t, err)
	assert.Equal(t, -1.4, e.Value)
	assert.Equal(t, models.ConfianzaMedia, e.Confidence)
	assert.Equal(t, 12, e.Observations)

	_, err = s.GetClusterElasticity(ctx, models.Cluster{Categoria: "otro"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
