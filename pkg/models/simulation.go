package models

// Elasticity confidence levels reported by the estimator.
const (
	ConfianzaAlta  = "alta"
	ConfianzaMedia = "media"
	ConfianzaBaja  = "baja"
)

// Elasticity is a cluster-level price elasticity estimate.
type Elasticity struct {
	Value        float64 `json:"value"`
	Confidence   string  `json:"confidence"`
	Observations int     `json:"observations"`
}

// SimulationInput carries everything the simulation engine needs for one SKU.
type SimulationInput struct {
	BaseCol         string
	PrecioActual    float64
	PrecioPropuesto float64
	Elasticity      Elasticity
	RitmoActual     float64
	RitmoCluster    float64
	Costo           float64
	StockTotal      float64
	HorizonDays     int
}

// SimulationResult is the projected outcome of a price change.
type SimulationResult struct {
	BaseCol                string     `json:"baseCol"`
	PrecioActual           float64    `json:"precioActual"`
	PrecioPropuesto        float64    `json:"precioPropuesto"`
	DeltaPct               float64    `json:"deltaPct"`
	Elasticity             Elasticity `json:"elasticidad"`
	RitmoActual            float64    `json:"ritmoActual"`
	RitmoBaseline          float64    `json:"ritmoBaseline"`
	FallbackUsed           bool       `json:"fallbackUsado"`
	RitmoProyectado        float64    `json:"ritmoProyectado"`
	UnidadesProyectadas    float64    `json:"unidadesProyectadas"`
	UnidadesProyectadasCap float64    `json:"unidadesProyectadasCap"`
	IngresoProyectado      float64    `json:"ingresoProyectado"`
	Costo                  float64    `json:"costo"`
	MargenUnitario         float64    `json:"margenUnitario"`
	MargenTotal            float64    `json:"margenTotal"`
	CostoMarkdown          float64    `json:"costoMarkdown"`
	SellThroughPct         float64    `json:"sellThroughPct"`
	StockTotal             float64    `json:"stockTotal"`
	HorizonDays            int        `json:"horizonteDias"`
	Warnings               []string   `json:"warnings"`
	PrecioBreakEven        *float64   `json:"precioBreakEven,omitempty"`
}
