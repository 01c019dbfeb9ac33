package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlay(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	old := NewRecord(t0)
	old.Set("a", 1)
	old.Set("b", 2)

	next := NewRecord(t1)
	next.Set("b", 20)
	next.Set("c", 30)

	got := Overlay(old, next)
	assert.Equal(t, t1, got.Time)
	assert.Equal(t, map[string]uint64{"a": 1, "b": 20, "c": 30}, got.Values)

	// inputs are untouched
	assert.Equal(t, map[string]uint64{"a": 1, "b": 2}, old.Values)

	t.Run("zero time keeps old", func(t *testing.T) {
		got := Overlay(old, Record{Values: map[string]uint64{"a": 5}})
		assert.Equal(t, t0, got.Time)
		v, ok := got.Get("a")
		assert.True(t, ok)
		assert.Equal(t, uint64(5), v)
	})
}

func TestSortRecords_Stable(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := Record{Time: t0.Add(time.Minute), Values: map[string]uint64{"n": 1}}
	b := Record{Time: t0, Values: map[string]uint64{"n": 2}}
	c := Record{Time: t0.Add(time.Minute), Values: map[string]uint64{"n": 3}}

	recs := []Record{a, b, c}
	SortRecords(recs)
	assert.Equal(t, []Record{b, a, c}, recs)
}
