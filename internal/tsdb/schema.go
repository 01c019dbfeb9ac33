package tsdb

import (
	"fmt"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Field names shared by the resource kinds
const (
	FieldCPUUsageNanoCores       = "cpu_usage_nano_cores"
	FieldCPUUsageCoreNanoSeconds = "cpu_usage_core_nano_seconds"

	FieldMemoryUsageBytes      = "memory_usage_bytes"
	FieldMemoryWorkingSetBytes = "memory_working_set_bytes"
	FieldMemoryRSSBytes        = "memory_rss_bytes"
	FieldMemoryPageFaults      = "memory_page_faults"

	FieldNetworkRxBytes  = "network_rx_bytes"
	FieldNetworkRxErrors = "network_rx_errors"
	FieldNetworkTxBytes  = "network_tx_bytes"
	FieldNetworkTxErrors = "network_tx_errors"

	FieldFsUsedBytes     = "fs_used_bytes"
	FieldFsCapacityBytes = "fs_capacity_bytes"
	FieldFsInodesUsed    = "fs_inodes_used"
	FieldFsInodes        = "fs_inodes"

	FieldEphemeralUsedBytes      = "ephemeral_used_bytes"
	FieldEphemeralCapacityBytes  = "ephemeral_capacity_bytes"
	FieldPersistentUsedBytes     = "persistent_used_bytes"
	FieldPersistentCapacityBytes = "persistent_capacity_bytes"
)

// Field is one column of a partition line
type Field struct {
	Name string
	Kind types.FieldKind
}

// Schema is the ordered column layout of one resource kind
type Schema struct {
	Kind   types.ResourceKind
	Fields []Field
	index  map[string]int
}

func newSchema(kind types.ResourceKind, groups ...[]Field) *Schema {
	s := &Schema{Kind: kind, index: make(map[string]int)}
	for _, g := range groups {
		for _, f := range g {
			s.index[f.Name] = len(s.Fields)
			s.Fields = append(s.Fields, f)
		}
	}
	return s
}

var (
	cpuFields = []Field{
		{FieldCPUUsageNanoCores, types.FieldKindGauge},
		{FieldCPUUsageCoreNanoSeconds, types.FieldKindCounter},
	}
	memoryFields = []Field{
		{FieldMemoryUsageBytes, types.FieldKindGauge},
		{FieldMemoryWorkingSetBytes, types.FieldKindGauge},
		{FieldMemoryRSSBytes, types.FieldKindGauge},
		{FieldMemoryPageFaults, types.FieldKindCounter},
	}
	networkFields = []Field{
		{FieldNetworkRxBytes, types.FieldKindCounter},
		{FieldNetworkRxErrors, types.FieldKindCounter},
		{FieldNetworkTxBytes, types.FieldKindCounter},
		{FieldNetworkTxErrors, types.FieldKindCounter},
	}
	fsFields = []Field{
		{FieldFsUsedBytes, types.FieldKindGauge},
		{FieldFsCapacityBytes, types.FieldKindCapacity},
		{FieldFsInodesUsed, types.FieldKindGauge},
		{FieldFsInodes, types.FieldKindCapacity},
	}
	volumeFields = []Field{
		{FieldEphemeralUsedBytes, types.FieldKindGauge},
		{FieldEphemeralCapacityBytes, types.FieldKindCapacity},
		{FieldPersistentUsedBytes, types.FieldKindGauge},
		{FieldPersistentCapacityBytes, types.FieldKindCapacity},
	}
)

// Column order is the on-disk order. Never reorder or insert in the middle.
var schemas = map[types.ResourceKind]*Schema{
	types.ResourceKindNode:      newSchema(types.ResourceKindNode, cpuFields, memoryFields, networkFields, fsFields),
	types.ResourceKindPod:       newSchema(types.ResourceKindPod, cpuFields, memoryFields, networkFields, volumeFields),
	types.ResourceKindContainer: newSchema(types.ResourceKindContainer, cpuFields, memoryFields, fsFields),
}

// SchemaFor returns the column layout of a resource kind
func SchemaFor(kind types.ResourceKind) (*Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("no schema for resource kind %q", kind)
	}
	return s, nil
}

// Has reports whether the field belongs to the schema
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// FieldKind returns the rollup classification of a field
func (s *Schema) FieldKind(name string) (types.FieldKind, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.Fields[i].Kind, true
}

// KeySegments returns how many path segments a key of this kind has
func (s *Schema) KeySegments() int {
	switch s.Kind {
	case types.ResourceKindPod:
		return 2
	case types.ResourceKindContainer:
		return 3
	default:
		return 1
	}
}

// Check rejects records carrying fields outside the schema
func (s *Schema) Check(rec types.Record) error {
	for name := range rec.Values {
		if !s.Has(name) {
			return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, s.Kind, name)
		}
	}
	return nil
}
