package watchlist

import (
	"errors"
	"fmt"
	"math"

	"github.com/kiranshivaraju/pricewatch/internal/velocity"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

var ErrMalformedRow = errors.New("malformed watchlist row")

// RowError describes why a row was skipped.
type RowError struct {
	BaseCol string
	Reason  string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %q: %s", e.BaseCol, e.Reason)
}

func (e *RowError) Is(target error) bool {
	return target == ErrMalformedRow
}

// Options control how rows become items.
type Options struct {
	WindowDays int
	CycleDays  int
	Thresholds velocity.Thresholds
}

// DefaultOptions uses a 14-day pace window and a 90-day cycle.
func DefaultOptions() Options {
	return Options{WindowDays: 14, CycleDays: 90, Thresholds: velocity.DefaultThresholds()}
}

// BuildItem computes the metrics, severity, tags and score of one row.
func BuildItem(row models.WatchlistRow, c Classifier, opts Options) (models.WatchlistItem, error) {
	if err := checkRow(row); err != nil {
		return models.WatchlistItem{}, err
	}
	motivos, score := c.Classify(row)
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return models.WatchlistItem{}, &RowError{BaseCol: row.BaseCol, Reason: "score must be a non-negative number"}
	}
	if motivos == nil {
		motivos = []string{}
	}

	vel := velocity.NewVelocityMetrics(row.UnitsVentana, opts.WindowDays,
		row.UnitsDesdeInicio, row.DiasDesdeInicio, row.RitmoCluster)
	stock := velocity.NewStockMetrics(row.StockOnHand, row.StockPendiente, vel.RitmoActual,
		row.DiasDesdeInicio, opts.CycleDays)

	return models.WatchlistItem{
		BaseCol:      row.BaseCol,
		Descripcion:  row.Descripcion,
		Categoria:    row.Cluster.Categoria,
		Genero:       row.Cluster.Genero,
		Marca:        row.Cluster.Marca,
		BandaPrecio:  row.Cluster.BandaPrecio,
		PrecioActual: row.PrecioActual,
		CostoProm:    row.CostoProm,
		StockTotal:   stock.StockTotal,
		Units7d:      row.Units7d,
		Units14d:     row.Units14d,
		Units28d:     row.Units28d,
		Velocity:     vel,
		Stock:        stock,
		Severidad:    opts.Thresholds.Classify(vel.IndiceRitmo),
		Motivo:       motivos,
		Score:        score,
	}, nil
}

func checkRow(row models.WatchlistRow) error {
	if row.BaseCol == "" {
		return &RowError{Reason: "missing baseCol"}
	}
	if row.DiasDesdeInicio < 0 {
		return &RowError{BaseCol: row.BaseCol, Reason: "diasDesdeInicio is negative"}
	}
	fields := []struct {
		name  string
		value float64
	}{
		{"precioActual", row.PrecioActual},
		{"costoProm", row.CostoProm},
		{"stockOnHand", row.StockOnHand},
		{"units7d", row.Units7d},
		{"units14d", row.Units14d},
		{"units28d", row.Units28d},
		{"unitsVentana", row.UnitsVentana},
		{"unitsDesdeInicio", row.UnitsDesdeInicio},
		{"ritmoCluster", row.RitmoCluster},
	}
	for _, f := range fields {
		if f.value < 0 || math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &RowError{BaseCol: row.BaseCol, Reason: f.name + " must be a non-negative number"}
		}
	}
	// Negative pending stock is clamped, but it still has to be a number.
	if math.IsNaN(row.StockPendiente) || math.IsInf(row.StockPendiente, 0) {
		return &RowError{BaseCol: row.BaseCol, Reason: "stockPendiente is not a number"}
	}
	return nil
}
