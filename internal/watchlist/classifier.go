// Package watchlist turns raw per-SKU fact rows into ranked watchlist items and a
// run summary.
package watchlist

import "github.com/kiranshivaraju/pricewatch/pkg/models"

// Classifier supplies the qualifying reason tags and the composite score of a row.
// The rules behind them live upstream.
type Classifier interface {
	Classify(row models.WatchlistRow) (motivos []string, score float64)
}

// FlagClassifier reads the tags from the row's upstream flags and passes its score through.
type FlagClassifier struct{}

func (FlagClassifier) Classify(row models.WatchlistRow) ([]string, float64) {
	motivos := make([]string, 0, 4)
	if row.Flags.LanzamientoPrematuro {
		motivos = append(motivos, models.MotivoLanzamientoPrematuro)
	}
	if row.Flags.Desacelerando {
		motivos = append(motivos, models.MotivoDesacelerando)
	}
	if row.Flags.Sobrestock {
		motivos = append(motivos, models.MotivoSobrestock)
	}
	if row.Flags.SinTraccion {
		motivos = append(motivos, models.MotivoSinTraccion)
	}
	return motivos, row.Score
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(row models.WatchlistRow) ([]string, float64)

func (f ClassifierFunc) Classify(row models.WatchlistRow) ([]string, float64) {
	return f(row)
}
