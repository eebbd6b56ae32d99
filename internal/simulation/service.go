package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/pricewatch/internal/elasticity"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/internal/validate"
	"github.com/kiranshivaraju/pricewatch/internal/velocity"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// SKULookup fetches the current fact row of a single SKU.
type SKULookup interface {
	GetSKURow(ctx context.Context, baseCol string, windowDays int) (*models.WatchlistRow, error)
}

// SimulateRequest is a user-initiated "what if" for one SKU.
type SimulateRequest struct {
	BaseCol         string   `json:"baseCol"         validate:"required,max=64"`
	PrecioActual    *float64 `json:"precioActual"    validate:"required,gt=0"`
	PrecioPropuesto *float64 `json:"precioPropuesto" validate:"required,gte=0"`
	HorizonDays     int      `json:"horizonteDias"   validate:"omitempty,gte=1,lte=365"`
}

// Service resolves SKU facts and elasticity, then runs the engine. It never touches job state.
type Service struct {
	engine     *Engine
	skus       SKULookup
	estimator  elasticity.Estimator
	windowDays int
	cfg        Config
}

// NewService creates a Service. windowDays is the trailing window used for ritmoActual.
func NewService(cfg Config, skus SKULookup, estimator elasticity.Estimator, windowDays int) *Service {
	return &Service{
		engine:     NewEngine(cfg),
		skus:       skus,
		estimator:  estimator,
		windowDays: windowDays,
		cfg:        cfg,
	}
}

// Simulate validates req, loads the SKU and its cluster elasticity, and projects the outcome.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*models.SimulationResult, error) {
	fields, err := validate.Fields(req)
	if err != nil {
		return nil, fmt.Errorf("validating simulation request: %w", err)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	row, err := s.skus.GetSKURow(ctx, req.BaseCol, s.windowDays)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSKUNotFound, req.BaseCol)
	}
	if err != nil {
		return nil, fmt.Errorf("loading sku %s: %w", req.BaseCol, err)
	}

	est, err := s.estimator.Estimate(ctx, row.Cluster)
	switch {
	case errors.Is(err, elasticity.ErrNoEstimate):
		slog.Info("no elasticity estimate for cluster, using fallback",
			"base_col", row.BaseCol, "categoria", row.Cluster.Categoria, "marca", row.Cluster.Marca)
		est = models.Elasticity{Value: s.cfg.FallbackElasticity, Confidence: models.ConfianzaBaja}
	case err != nil:
		return nil, fmt.Errorf("estimating elasticity: %w", err)
	}

	vm := velocity.NewVelocityMetrics(row.UnitsVentana, s.windowDays, row.UnitsDesdeInicio, row.DiasDesdeInicio, row.RitmoCluster)
	stock := velocity.NewStockMetrics(row.StockOnHand, row.StockPendiente, vm.RitmoActual, row.DiasDesdeInicio, 0)

	res, err := s.engine.Simulate(models.SimulationInput{
		BaseCol:         row.BaseCol,
		PrecioActual:    *req.PrecioActual,
		PrecioPropuesto: *req.PrecioPropuesto,
		Elasticity:      est,
		RitmoActual:     vm.RitmoActual,
		RitmoCluster:    vm.RitmoCluster,
		Costo:           row.CostoProm,
		StockTotal:      stock.StockTotal,
		HorizonDays:     req.HorizonDays,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
