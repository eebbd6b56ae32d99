// Package velocity turns raw unit and stock counts into sales rates and coverage ratios.
// All functions are pure.
package velocity

import (
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// RitmoActual is the recent pace in units per day.
func RitmoActual(unitsInWindow, windowDays float64) float64 {
	if windowDays <= 0 {
		return 0
	}
	return unitsInWindow / windowDays
}

// RitmoBase is the average pace since the start of the selling cycle.
func RitmoBase(unitsSinceStart, daysSinceStart float64) float64 {
	if daysSinceStart <= 0 {
		return 0
	}
	return unitsSinceStart / daysSinceStart
}

// IndiceDesaceleracion compares the recent pace with the cycle pace.
// With no base pace it is 1 when the SKU is selling now and 0 otherwise.
func IndiceDesaceleracion(ritmoActual, ritmoBase float64) float64 {
	return guardedRatio(ritmoActual, ritmoBase)
}

// IndiceRitmo compares the recent pace with the peer cluster pace.
func IndiceRitmo(ritmoActual, ritmoCluster float64) float64 {
	return guardedRatio(ritmoActual, ritmoCluster)
}

func guardedRatio(num, den float64) float64 {
	if den == 0 {
		if num > 0 {
			return 1
		}
		return 0
	}
	return num / den
}

// SafeDivide returns n/d, or ok=false when d is zero and the ratio is undefined.
func SafeDivide(n, d float64) (float64, bool) {
	if d == 0 {
		return 0, false
	}
	return n / d, true
}

// NewVelocityMetrics derives every rate of a SKU from its raw counts.
func NewVelocityMetrics(unitsInWindow float64, windowDays int, unitsSinceStart float64, daysSinceStart int, ritmoCluster float64) models.VelocityMetrics {
	actual := RitmoActual(unitsInWindow, float64(windowDays))
	base := RitmoBase(unitsSinceStart, float64(daysSinceStart))
	return models.VelocityMetrics{
		RitmoActual:          actual,
		RitmoBase:            base,
		IndiceDesaceleracion: IndiceDesaceleracion(actual, base),
		RitmoCluster:         ritmoCluster,
		IndiceRitmo:          IndiceRitmo(actual, ritmoCluster),
	}
}

// NewStockMetrics computes stock coverage for one SKU. Pending stock is clamped at zero.
func NewStockMetrics(onHand, pendiente, dailyRate float64, diasDesdeInicio, cycleDays int) models.StockMetrics {
	if pendiente < 0 {
		pendiente = 0
	}
	m := models.StockMetrics{
		StockOnHand:     onHand,
		StockPendiente:  pendiente,
		StockTotal:      onHand + pendiente,
		DiasDesdeInicio: diasDesdeInicio,
	}
	if dias, ok := SafeDivide(m.StockTotal, dailyRate); ok {
		m.DiasStock = &dias
	}
	if restantes := cycleDays - diasDesdeInicio; restantes > 0 {
		m.DiasRestantesCiclo = &restantes
	}
	return m
}
