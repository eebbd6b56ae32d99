package models

import "time"

// Qualifying reason tags attached by upstream classification.
const (
	MotivoLanzamientoPrematuro = "lanzamiento_prematuro"
	MotivoDesacelerando        = "desacelerando"
	MotivoSobrestock           = "sobrestock"
	MotivoSinTraccion          = "sin_traccion"
)

// Severity buckets for indiceRitmo.
const (
	SeveridadCritico = "critico"
	SeveridadBajo    = "bajo"
	SeveridadNormal  = "normal"
	SeveridadAlto    = "alto"
)

// WatchlistParams is the submission input of a watchlist job. It is stored verbatim
// on the job row and never modified after submission.
type WatchlistParams struct {
	Marcas           []string   `json:"marcas,omitempty"     validate:"omitempty,dive,required,max=100"`
	Categorias       []string   `json:"categorias,omitempty" validate:"omitempty,dive,required,max=100"`
	Generos          []string   `json:"generos,omitempty"    validate:"omitempty,dive,required,max=100"`
	Tiendas          []string   `json:"tiendas,omitempty"    validate:"omitempty,dive,required,max=100"`
	Search           string     `json:"search,omitempty"     validate:"max=200"`
	Desde            *time.Time `json:"desde,omitempty"`
	Hasta            *time.Time `json:"hasta,omitempty"`
	RitmoVentanaDias int        `json:"ritmoVentanaDias"     validate:"gte=1,lte=365"`
	CycleDays        int        `json:"cycleDays"            validate:"gte=1,lte=730"`
}

// Cluster identifies the peer group a SKU is normalized against.
type Cluster struct {
	Categoria   string `json:"categoria"`
	Genero      string `json:"genero"`
	Marca       string `json:"marca"`
	BandaPrecio string `json:"bandaPrecio"`
}

// ReasonFlags are the upstream qualifying-reason booleans for one SKU.
type ReasonFlags struct {
	LanzamientoPrematuro bool
	Desacelerando        bool
	Sobrestock           bool
	SinTraccion          bool
}

// WatchlistRow is one raw per-SKU fact row as returned by the fact source.
// Unit counts are totals over the trailing window named by the field.
type WatchlistRow struct {
	BaseCol          string
	Descripcion      string
	Cluster          Cluster
	PrecioActual     float64
	CostoProm        float64
	StockOnHand      float64
	StockPendiente   float64
	Units7d          float64
	Units14d         float64
	Units28d         float64
	UnitsVentana     float64
	UnitsDesdeInicio float64
	DiasDesdeInicio  int
	RitmoCluster     float64
	Flags            ReasonFlags
	Score            float64
}

// VelocityMetrics are sales rates in units per day.
type VelocityMetrics struct {
	RitmoActual          float64 `json:"ritmoActual"`
	RitmoBase            float64 `json:"ritmoBase"`
	IndiceDesaceleracion float64 `json:"indiceDesaceleracion"`
	RitmoCluster         float64 `json:"ritmoCluster"`
	IndiceRitmo          float64 `json:"indiceRitmo"`
}

// StockMetrics describe stock coverage. DiasStock is nil when the daily rate is zero;
// DiasRestantesCiclo is nil once the cycle has ended.
type StockMetrics struct {
	StockOnHand        float64  `json:"stockOnHand"`
	StockPendiente     float64  `json:"stockPendiente"`
	StockTotal         float64  `json:"stockTotal"`
	DiasStock          *float64 `json:"diasStock"`
	DiasDesdeInicio    int      `json:"diasDesdeInicio"`
	DiasRestantesCiclo *int     `json:"diasRestantesCiclo"`
}

// WatchlistItem is the per-SKU snapshot produced by one job run.
type WatchlistItem struct {
	BaseCol      string          `json:"baseCol"`
	Descripcion  string          `json:"descripcion"`
	Categoria    string          `json:"categoria"`
	Genero       string          `json:"genero"`
	Marca        string          `json:"marca"`
	BandaPrecio  string          `json:"bandaPrecio"`
	PrecioActual float64         `json:"precioActual"`
	CostoProm    float64         `json:"costoProm"`
	StockTotal   float64         `json:"stockTotal"`
	Units7d      float64         `json:"units7d"`
	Units14d     float64         `json:"units14d"`
	Units28d     float64         `json:"units28d"`
	Velocity     VelocityMetrics `json:"velocity"`
	Stock        StockMetrics    `json:"stock"`
	Severidad    string          `json:"severidad"`
	Motivo       []string        `json:"motivo"`
	Score        float64         `json:"score"`
}

// MotivoCount is one entry of the topMotivos ranking.
type MotivoCount struct {
	Motivo string `json:"motivo"`
	Count  int    `json:"count"`
}

// WatchlistSummary aggregates a completed run.
type WatchlistSummary struct {
	TotalItems       int           `json:"totalItems"`
	CriticalCount    int           `json:"criticalCount"`
	LowCount         int           `json:"lowCount"`
	NormalCount      int           `json:"normalCount"`
	AverageScore     float64       `json:"averageScore"`
	TopMotivos       []MotivoCount `json:"topMotivos"`
	SkippedRows      int           `json:"skippedRows"`
	RitmoVentanaDias int           `json:"ritmoVentanaDias"`
	CycleDays        int           `json:"cycleDays"`
}

// WatchlistResult is the stored result payload: every ranked item, best score first.
type WatchlistResult struct {
	Items []WatchlistItem `json:"items"`
	Total int             `json:"total"`
}
