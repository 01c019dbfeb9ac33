package types

import (
	"fmt"
	"time"
)

// ResourceKind identifies which kind of cluster object a series describes
type ResourceKind string

const (
	ResourceKindNode      ResourceKind = "node"
	ResourceKindPod       ResourceKind = "pod"
	ResourceKindContainer ResourceKind = "container"
)

// ResourceKinds lists every kind in storage order
var ResourceKinds = []ResourceKind{ResourceKindNode, ResourceKindPod, ResourceKindContainer}

// ParseResourceKind converts a string into a ResourceKind
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(s) {
	case ResourceKindNode, ResourceKindPod, ResourceKindContainer:
		return ResourceKind(s), nil
	case "nodes", "pods", "containers":
		return ResourceKind(s[:len(s)-1]), nil
	default:
		return "", fmt.Errorf("unknown resource kind: %q", s)
	}
}

// Granularity is the sampling resolution of a series
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// Granularities lists every granularity from finest to coarsest
var Granularities = []Granularity{GranularityMinute, GranularityHour, GranularityDay}

// ParseGranularity converts a string into a Granularity
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityMinute, GranularityHour, GranularityDay:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("unknown granularity: %q", s)
	}
}

// Interval returns the nominal spacing between two records of this granularity
func (g Granularity) Interval() time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	case GranularityDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Coarser returns the next coarser granularity, or false for day
func (g Granularity) Coarser() (Granularity, bool) {
	switch g {
	case GranularityMinute:
		return GranularityHour, true
	case GranularityHour:
		return GranularityDay, true
	default:
		return "", false
	}
}

// FieldKind determines how a field is rolled up
type FieldKind int

const (
	// FieldKindGauge is an instantaneous state, averaged over time
	FieldKindGauge FieldKind = iota
	// FieldKindCounter is a monotonic counter or an interval usage total
	FieldKindCounter
	// FieldKindCapacity is a slowly changing ceiling, snapshotted
	FieldKindCapacity
)

func (k FieldKind) String() string {
	switch k {
	case FieldKindGauge:
		return "gauge"
	case FieldKindCounter:
		return "counter"
	case FieldKindCapacity:
		return "capacity"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Sample is one resource's record produced by a collection tick
type Sample struct {
	Kind   ResourceKind `json:"kind"`
	Key    string       `json:"key"`
	Record Record       `json:"record"`
}
