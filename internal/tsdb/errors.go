package tsdb

import "errors"

var (
	// ErrInvalidRange is returned when a range ends before it starts
	ErrInvalidRange = errors.New("invalid time range")

	// ErrRangeTooLarge is returned when a range spans more partitions than a query may open
	ErrRangeTooLarge = errors.New("time range too large")

	// ErrUnknownField is returned for a field name outside the resource kind's schema
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidKey is returned for a resource key that cannot map to a partition directory
	ErrInvalidKey = errors.New("invalid resource key")

	// ErrInvalidRecord is returned when a record cannot be written
	ErrInvalidRecord = errors.New("invalid record")

	// ErrOutOfOrder is returned when a write would land before rows already in its partition
	ErrOutOfOrder = errors.New("record out of order")

	// ErrUnknownStore is returned when no store exists for a kind and granularity
	ErrUnknownStore = errors.New("unknown store")
)
