package types

import "time"

// RangeQuery selects a window of one or more series
type RangeQuery struct {
	Kind        ResourceKind `json:"kind" validate:"required,oneof=node pod container"`
	Keys        []string     `json:"keys,omitempty"`
	Start       time.Time    `json:"start" validate:"required"`
	End         time.Time    `json:"end" validate:"required"`
	Granularity Granularity  `json:"granularity,omitempty"`
	Field       string       `json:"field,omitempty"`
	Limit       int          `json:"limit,omitempty" validate:"min=0"`
	Offset      int          `json:"offset,omitempty" validate:"min=0"`
}
