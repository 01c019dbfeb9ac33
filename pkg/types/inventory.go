package types

import "time"

// Capacity is a resource ceiling expressed in base units
type Capacity struct {
	CPUCores     float64 `json:"cpu_cores"`
	MemoryBytes  uint64  `json:"memory_bytes"`
	StorageBytes uint64  `json:"storage_bytes"`
}

// Add returns the element-wise sum of two capacities
func (c Capacity) Add(o Capacity) Capacity {
	return Capacity{
		CPUCores:     c.CPUCores + o.CPUCores,
		MemoryBytes:  c.MemoryBytes + o.MemoryBytes,
		StorageBytes: c.StorageBytes + o.StorageBytes,
	}
}

// NodeInventory is what the cluster reports about one node
type NodeInventory struct {
	Name        string    `json:"name"`
	Capacity    Capacity  `json:"capacity"`
	Allocatable Capacity  `json:"allocatable"`
	CreatedAt   time.Time `json:"created_at"`
	Ready       bool      `json:"ready"`
}

// Runtime bounds the period a resource was running. A zero End means still running.
type Runtime struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
