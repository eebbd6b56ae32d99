package velocity

import "github.com/kiranshivaraju/pricewatch/pkg/models"

// Thresholds bucket indiceRitmo values. Alto <= 0 disables the alto bucket.
type Thresholds struct {
	Critico float64
	Bajo    float64
	Alto    float64
}

// DefaultThresholds returns the bucketing used by the watchlist summary.
func DefaultThresholds() Thresholds {
	return Thresholds{Critico: 0.6, Bajo: 0.9, Alto: 1.5}
}

// Classify returns the severity bucket for an indiceRitmo value.
func (t Thresholds) Classify(indiceRitmo float64) string {
	switch {
	case indiceRitmo < t.Critico:
		return models.SeveridadCritico
	case indiceRitmo < t.Bajo:
		return models.SeveridadBajo
	case t.Alto > 0 && indiceRitmo >= t.Alto:
		return models.SeveridadAlto
	default:
		return models.SeveridadNormal
	}
}
