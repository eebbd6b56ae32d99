// Package simulation projects the outcome of a price change for a single SKU.
package simulation

import (
	"fmt"
	"math"

	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// Config holds the tunables of the projection model.
type Config struct {
	// DefaultHorizonDays is used when the input does not set a horizon.
	DefaultHorizonDays int
	// FallbackPaceFactor scales the cluster pace for SKUs without recent sales.
	FallbackPaceFactor float64
	// FallbackBase is the boost floor added to the price-cut factor.
	FallbackBase float64
	// CutBoostScale multiplies |deltaPct| for price cuts; the result is capped at CutBoostCap.
	CutBoostScale float64
	CutBoostCap   float64
	// LowSellThroughPct triggers the low sell-through warning.
	LowSellThroughPct float64
	// MinMarginPct enables the break-even price when > 0.
	MinMarginPct float64
	// FallbackElasticity is used when the estimator has no estimate for the cluster.
	FallbackElasticity float64
}

// DefaultConfig returns the model constants.
func DefaultConfig() Config {
	return Config{
		DefaultHorizonDays: 90,
		FallbackPaceFactor: 0.3,
		FallbackBase:       0.5,
		CutBoostScale:      2,
		CutBoostCap:        1,
		LowSellThroughPct:  50,
		FallbackElasticity: -1,
	}
}

// Engine runs projections. It holds no state besides its config and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Simulate projects sell-through, revenue, margin and markdown cost for in.
func (e *Engine) Simulate(in models.SimulationInput) (models.SimulationResult, error) {
	if in.PrecioActual <= 0 || math.IsNaN(in.PrecioActual) {
		return models.SimulationResult{}, &ValidationError{Fields: []string{"precioActual"}}
	}
	if in.PrecioPropuesto < 0 || math.IsNaN(in.PrecioPropuesto) {
		return models.SimulationResult{}, &ValidationError{Fields: []string{"precioPropuesto"}}
	}

	horizon := in.HorizonDays
	if horizon <= 0 {
		horizon = e.cfg.DefaultHorizonDays
	}

	deltaPct := (in.PrecioPropuesto - in.PrecioActual) / in.PrecioActual
	baseline, fallback := e.baseline(in.RitmoActual, in.RitmoCluster, deltaPct)

	projectedPace := math.Max(0, baseline*(1+in.Elasticity.Value*deltaPct))
	units := projectedPace * float64(horizon)
	unitsCap := math.Min(units, in.StockTotal)
	if unitsCap < 0 {
		unitsCap = 0
	}

	marginPerUnit := in.PrecioPropuesto - in.Costo

	res := models.SimulationResult{
		BaseCol:                in.BaseCol,
		PrecioActual:           in.PrecioActual,
		PrecioPropuesto:        in.PrecioPropuesto,
		DeltaPct:               deltaPct,
		Elasticity:             in.Elasticity,
		RitmoActual:            in.RitmoActual,
		RitmoBaseline:          baseline,
		FallbackUsed:           fallback,
		RitmoProyectado:        projectedPace,
		UnidadesProyectadas:    units,
		UnidadesProyectadasCap: unitsCap,
		IngresoProyectado:      unitsCap * in.PrecioPropuesto,
		Costo:                  in.Costo,
		MargenUnitario:         marginPerUnit,
		MargenTotal:            unitsCap * marginPerUnit,
		CostoMarkdown:          (in.PrecioActual - in.PrecioPropuesto) * unitsCap,
		StockTotal:             in.StockTotal,
		HorizonDays:            horizon,
		Warnings:               []string{},
	}
	if in.StockTotal > 0 {
		res.SellThroughPct = unitsCap / in.StockTotal * 100
	}

	if fallback {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"no recent sales: baseline pace estimated from cluster pace (%.2f units/day)", baseline))
	}
	if marginPerUnit < 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"negative margin: proposed price %.2f is below cost %.2f", in.PrecioPropuesto, in.Costo))
	}
	if in.Elasticity.Confidence == models.ConfianzaBaja {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"low elasticity confidence (%d observations)", in.Elasticity.Observations))
	}
	if res.SellThroughPct < e.cfg.LowSellThroughPct && in.StockTotal > 0 && !fallback {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"projected sell-through %.1f%% is below %.0f%% in %d days", res.SellThroughPct, e.cfg.LowSellThroughPct, horizon))
	}

	if e.cfg.MinMarginPct > 0 && e.cfg.MinMarginPct < 100 && in.StockTotal > 0 {
		be := in.Costo / (1 - e.cfg.MinMarginPct/100)
		res.PrecioBreakEven = &be
	}

	return res, nil
}

// baseline picks the pace the elasticity is applied to. SKUs with no recent sales
// in a cluster that does sell get a fraction of the cluster pace, boosted for price cuts.
func (e *Engine) baseline(ritmoActual, ritmoCluster, deltaPct float64) (float64, bool) {
	if ritmoActual != 0 || ritmoCluster <= 0 {
		return ritmoActual, false
	}
	factor := 0.0
	if deltaPct < 0 {
		factor = math.Min(e.cfg.CutBoostCap, math.Abs(deltaPct)*e.cfg.CutBoostScale)
	}
	return ritmoCluster * e.cfg.FallbackPaceFactor * (e.cfg.FallbackBase + factor), true
}
