package watchlist

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// Aggregator collects items batch by batch. Result is independent of how rows were
// split into batches. An Aggregator is not safe for concurrent use.
type Aggregator struct {
	classifier Classifier
	opts       Options
	items      []models.WatchlistItem
	skipped    int
}

func NewAggregator(c Classifier, opts Options) *Aggregator {
	if c == nil {
		c = FlagClassifier{}
	}
	return &Aggregator{classifier: c, opts: opts}
}

// Add builds an item for every row of batch. Malformed rows are counted and skipped.
func (a *Aggregator) Add(batch []models.WatchlistRow) {
	for _, row := range batch {
		item, err := BuildItem(row, a.classifier, a.opts)
		if err != nil {
			a.skipped++
			slog.Debug("skipping watchlist row", "error", err)
			continue
		}
		a.items = append(a.items, item)
	}
}

// Processed is the number of rows seen so far, skipped ones included.
func (a *Aggregator) Processed() int {
	return len(a.items) + a.skipped
}

func (a *Aggregator) Skipped() int {
	return a.skipped
}

// Result ranks the items by score, best first, and summarizes the run.
func (a *Aggregator) Result() (models.WatchlistResult, models.WatchlistSummary) {
	items := slices.Clone(a.items)
	if items == nil {
		items = []models.WatchlistItem{}
	}
	slices.SortFunc(items, func(x, y models.WatchlistItem) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.BaseCol, y.BaseCol)
	})

	summary := models.WatchlistSummary{
		TotalItems:       len(items),
		TopMotivos:       topMotivos(items),
		SkippedRows:      a.skipped,
		RitmoVentanaDias: a.opts.WindowDays,
		CycleDays:        a.opts.CycleDays,
	}
	var total float64
	for _, it := range items {
		total += it.Score
		switch it.Severidad {
		case models.SeveridadCritico:
			summary.CriticalCount++
		case models.SeveridadBajo:
			summary.LowCount++
		default:
			summary.NormalCount++
		}
	}
	if len(items) > 0 {
		summary.AverageScore = total / float64(len(items))
	}

	return models.WatchlistResult{Items: items, Total: len(items)}, summary
}

func topMotivos(items []models.WatchlistItem) []models.MotivoCount {
	counts := make(map[string]int)
	for _, it := range items {
		for _, m := range slices.Compact(slices.Sorted(slices.Values(it.Motivo))) {
			counts[m]++
		}
	}
	out := make([]models.MotivoCount, 0, len(counts))
	for m, n := range counts {
		out = append(out, models.MotivoCount{Motivo: m, Count: n})
	}
	slices.SortFunc(out, func(x, y models.MotivoCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Motivo, y.Motivo)
	})
	return out
}

// Batches splits rows into consecutive slices of at most size rows.
func Batches(rows []models.WatchlistRow, size int) [][]models.WatchlistRow {
	if size <= 0 {
		size = 50
	}
	return slices.Collect(slices.Chunk(rows, size))
}
