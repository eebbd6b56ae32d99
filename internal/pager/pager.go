// Package pager sorts a completed job's stored items and slices one page out of them.
package pager

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/kiranshivaraju/pricewatch/pkg/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Sortable columns.
const (
	ColumnScore        = "score"
	ColumnBaseCol      = "baseCol"
	ColumnCategoria    = "categoria"
	ColumnMarca        = "marca"
	ColumnPrecioActual = "precioActual"
	ColumnCostoProm    = "costoProm"
	ColumnStockTotal   = "stockTotal"
	ColumnRitmoActual  = "ritmoActual"
	ColumnIndiceRitmo  = "indiceRitmo"
	ColumnDiasStock    = "diasStock"
	ColumnMotivo       = "motivo"
)

// Request is a page query. Use Normalize before Sort and Paginate.
type Request struct {
	Page          int    `json:"page"`
	PageSize      int    `json:"pageSize"`
	SortColumn    string `json:"sortColumn"`
	SortDirection string `json:"sortDirection"`
}

// Normalize clamps the page bounds and replaces unknown sort parameters with the defaults.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize <= 0:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	if _, ok := numericKeys[r.SortColumn]; !ok && !isStringColumn(r.SortColumn) {
		r.SortColumn = ColumnScore
	}
	r.SortDirection = strings.ToLower(r.SortDirection)
	if r.SortDirection != SortAsc {
		r.SortDirection = SortDesc
	}
	return r
}

// Page is one slice of a sorted result set.
type Page struct {
	Items      []models.WatchlistItem `json:"items"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	Total      int                    `json:"total"`
	TotalPages int                    `json:"totalPages"`
}

var numericKeys = map[string]func(it *models.WatchlistItem) float64{
	ColumnScore:        func(it *models.WatchlistItem) float64 { return it.Score },
	ColumnPrecioActual: func(it *models.WatchlistItem) float64 { return it.PrecioActual },
	ColumnCostoProm:    func(it *models.WatchlistItem) float64 { return it.CostoProm },
	ColumnStockTotal:   func(it *models.WatchlistItem) float64 { return it.StockTotal },
	ColumnRitmoActual:  func(it *models.WatchlistItem) float64 { return it.Velocity.RitmoActual },
	ColumnIndiceRitmo:  func(it *models.WatchlistItem) float64 { return it.Velocity.IndiceRitmo },
	ColumnDiasStock: func(it *models.WatchlistItem) float64 {
		if it.Stock.DiasStock == nil {
			return math.MaxFloat64
		}
		return *it.Stock.DiasStock
	},
}

func stringKey(column string, it *models.WatchlistItem) string {
	switch column {
	case ColumnBaseCol:
		return it.BaseCol
	case ColumnCategoria:
		return it.Categoria
	case ColumnMarca:
		return it.Marca
	case ColumnMotivo:
		if len(it.Motivo) == 0 {
			return ""
		}
		return it.Motivo[0]
	}
	return ""
}

func isStringColumn(column string) bool {
	switch column {
	case ColumnBaseCol, ColumnCategoria, ColumnMarca, ColumnMotivo:
		return true
	}
	return false
}

// Sort returns a sorted copy of items. The sort is stable, so items that compare
// equal keep their stored order. column and direction must be normalized.
func Sort(items []models.WatchlistItem, column, direction string) []models.WatchlistItem {
	out := slices.Clone(items)

	var compare func(a, b *models.WatchlistItem) int
	if key, ok := numericKeys[column]; ok {
		compare = func(a, b *models.WatchlistItem) int { return cmp.Compare(key(a), key(b)) }
	} else {
		// A Collator is not safe for concurrent use; each call gets its own.
		col := collate.New(language.Spanish, collate.IgnoreCase)
		compare = func(a, b *models.WatchlistItem) int {
			return col.CompareString(stringKey(column, a), stringKey(column, b))
		}
	}

	slices.SortStableFunc(out, func(a, b models.WatchlistItem) int {
		c := compare(&a, &b)
		if direction == SortDesc {
			return -c
		}
		return c
	})
	return out
}

// Paginate slices the page described by req out of sorted items.
func Paginate(items []models.WatchlistItem, req Request) Page {
	req = req.Normalize()
	total := len(items)
	p := Page{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: (total + req.PageSize - 1) / req.PageSize,
		Items:      []models.WatchlistItem{},
	}
	// Checked before multiplying so huge page numbers cannot overflow the offset.
	if req.Page > p.TotalPages {
		return p
	}
	start := (req.Page - 1) * req.PageSize
	end := min(start+req.PageSize, total)
	p.Items = items[start:end]
	return p
}
