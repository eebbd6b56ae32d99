// Package elasticity resolves cluster-level price elasticity estimates. The estimation
// itself happens elsewhere; this package only fetches, falls back and caches.
package elasticity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/pricewatch/internal/cache"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// Sentinel errors for estimator failures.
var (
	ErrNoEstimate           = errors.New("no elasticity estimate for cluster")
	ErrEstimatorUnreachable = errors.New("elasticity estimator unreachable")
	ErrEstimatorTimeout     = errors.New("elasticity estimator timeout")
	ErrEstimatorBadResponse = errors.New("elasticity estimator returned invalid response")
)

// Estimator returns the elasticity of a cluster. Implementations return ErrNoEstimate
// when the cluster has never been estimated.
type Estimator interface {
	Estimate(ctx context.Context, cluster models.Cluster) (models.Elasticity, error)
}

// ClusterSource is the store capability backing SourceEstimator.
type ClusterSource interface {
	GetClusterElasticity(ctx context.Context, cluster models.Cluster) (*models.Elasticity, error)
}

// SourceEstimator reads precomputed estimates from the fact store.
type SourceEstimator struct {
	src ClusterSource
}

// NewSourceEstimator creates a SourceEstimator.
func NewSourceEstimator(src ClusterSource) *SourceEstimator {
	return &SourceEstimator{src: src}
}

func (e *SourceEstimator) Estimate(ctx context.Context, cluster models.Cluster) (models.Elasticity, error) {
	el, err := e.src.GetClusterElasticity(ctx, cluster)
	if errors.Is(err, store.ErrNotFound) {
		return models.Elasticity{}, ErrNoEstimate
	}
	if err != nil {
		return models.Elasticity{}, fmt.Errorf("reading cluster elasticity: %w", err)
	}
	return *el, nil
}

// CachedEstimator memoizes another Estimator in the shared cache. Clusters without
// an estimate are remembered for at most negativeTTL. Cache failures only cost a
// call to the wrapped Estimator.
type CachedEstimator struct {
	next  Estimator
	cache cache.Cache
	ttl   time.Duration
}

const negativeTTL = time.Minute

var noEstimateMarker = []byte(`{"missing":true}`)

// NewCachedEstimator wraps next with a cache layer.
func NewCachedEstimator(next Estimator, c cache.Cache, ttl time.Duration) *CachedEstimator {
	return &CachedEstimator{next: next, cache: c, ttl: ttl}
}

func (e *CachedEstimator) Estimate(ctx context.Context, cluster models.Cluster) (models.Elasticity, error) {
	key := cache.ElasticityKey(cluster.Categoria, cluster.Genero, cluster.Marca, cluster.BandaPrecio)

	raw, found, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("elasticity cache read failed", "key", key, "error", err)
	}
	if found {
		if bytes.Equal(raw, noEstimateMarker) {
			return models.Elasticity{}, ErrNoEstimate
		}
		var el models.Elasticity
		if err := json.Unmarshal(raw, &el); err == nil {
			return el, nil
		}
	}

	el, err := e.next.Estimate(ctx, cluster)
	if errors.Is(err, ErrNoEstimate) {
		e.store(ctx, key, noEstimateMarker, min(e.ttl, negativeTTL))
		return models.Elasticity{}, err
	}
	if err != nil {
		return models.Elasticity{}, err
	}

	if b, err := json.Marshal(el); err == nil {
		e.store(ctx, key, b, e.ttl)
	}
	return el, nil
}

func (e *CachedEstimator) store(ctx context.Context, key string, b []byte, ttl time.Duration) {
	if err := e.cache.Set(ctx, key, b, ttl); err != nil {
		slog.Warn("elasticity cache write failed", "key", key, "error", err)
	}
}

var (
	_ Estimator = (*SourceEstimator)(nil)
	_ Estimator = (*CachedEstimator)(nil)
)
