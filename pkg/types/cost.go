package types

import "time"

// UnitPrice holds the USD rates used to derive cost from usage
type UnitPrice struct {
	CPUCoreHour   float64   `db:"cpu_core_hour" json:"cpu_core_hour" yaml:"cpuCoreHour" validate:"gte=0"`
	MemoryGBHour  float64   `db:"memory_gb_hour" json:"memory_gb_hour" yaml:"memoryGBHour" validate:"gte=0"`
	StorageGBHour float64   `db:"storage_gb_hour" json:"storage_gb_hour" yaml:"storageGBHour" validate:"gte=0"`
	NetworkGB     float64   `db:"network_gb" json:"network_gb" yaml:"networkGB" validate:"gte=0"`
	Currency      string    `db:"currency" json:"currency" yaml:"currency"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// CostPoint is the cost attributed to one record of a series
type CostPoint struct {
	Time                     time.Time `json:"time"`
	IntervalHours            float64   `json:"interval_hours"`
	CPUCoreHours             float64   `json:"cpu_core_hours"`
	MemoryGBHours            float64   `json:"memory_gb_hours"`
	StorageGBHours           float64   `json:"storage_gb_hours"`
	NetworkGB                float64   `json:"network_gb"`
	CPUCostUSD               float64   `json:"cpu_cost_usd"`
	MemoryCostUSD            float64   `json:"memory_cost_usd"`
	EphemeralStorageCostUSD  float64   `json:"ephemeral_storage_cost_usd"`
	PersistentStorageCostUSD float64   `json:"persistent_storage_cost_usd"`
	StorageCostUSD           float64   `json:"storage_cost_usd"`
	NetworkCostUSD           float64   `json:"network_cost_usd"`
	TotalCostUSD             float64   `json:"total_cost_usd"`
}

// SeriesCost is the per-point cost of one resource's series
type SeriesCost struct {
	Kind        ResourceKind `json:"kind"`
	Key         string       `json:"key"`
	Granularity Granularity  `json:"granularity"`
	Points      []CostPoint  `json:"points"`
}

// CostSummary is the total cost over a window, split by category
type CostSummary struct {
	Start                    time.Time `json:"start"`
	End                      time.Time `json:"end"`
	Points                   int       `json:"points"`
	CPUCostUSD               float64   `json:"cpu_cost_usd"`
	MemoryCostUSD            float64   `json:"memory_cost_usd"`
	EphemeralStorageCostUSD  float64   `json:"ephemeral_storage_cost_usd"`
	PersistentStorageCostUSD float64   `json:"persistent_storage_cost_usd"`
	NetworkCostUSD           float64   `json:"network_cost_usd"`
	TotalCostUSD             float64   `json:"total_cost_usd"`
}

// CostTrend describes how cost moved across a window
type CostTrend struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Points         int       `json:"points"`
	StartCostUSD   float64   `json:"start_cost_usd"`
	EndCostUSD     float64   `json:"end_cost_usd"`
	ChangeUSD      float64   `json:"change_usd"`
	ChangePercent  float64   `json:"change_percent"`
	SlopePerSecond float64   `json:"slope_per_second"`
	Intercept      float64   `json:"intercept"`
	NextTime       time.Time `json:"next_time"`
	ForecastUSD    float64   `json:"forecast_usd"`
}

// Efficiency compares average usage with allocatable capacity
type Efficiency struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Storage float64 `json:"storage"`
	Overall float64 `json:"overall"`
}

// NodeCost prices a node's whole capacity for the hours it was observed running
type NodeCost struct {
	Key            string  `json:"key"`
	RunningHours   float64 `json:"running_hours"`
	CPUCostUSD     float64 `json:"cpu_cost_usd"`
	MemoryCostUSD  float64 `json:"memory_cost_usd"`
	StorageCostUSD float64 `json:"storage_cost_usd"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
}
