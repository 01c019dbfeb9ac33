package tsdb_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

func newStore(t *testing.T, kind types.ResourceKind, g types.Granularity, opts ...tsdb.Option) *tsdb.Store {
	t.Helper()
	s, err := tsdb.NewStore(t.TempDir(), kind, g, opts...)
	require.NoError(t, err)
	return s
}

func record(t time.Time, values map[string]uint64) types.Record {
	r := types.NewRecord(t)
	for k, v := range values {
		r.Set(k, v)
	}
	return r
}

func TestStore_RoundTrip(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
	at := time.Date(2024, 3, 10, 12, 30, 45, 600_000_000, time.UTC)

	in := record(at, map[string]uint64{
		tsdb.FieldCPUUsageNanoCores:       250_000_000,
		tsdb.FieldCPUUsageCoreNanoSeconds: 9_000_000_000_000,
		tsdb.FieldMemoryWorkingSetBytes:   1 << 30,
		tsdb.FieldNetworkRxBytes:          0,
		tsdb.FieldFsCapacityBytes:         100 << 30,
	})
	require.NoError(t, s.Append("worker-1", in))

	rows, err := s.GetRowsBetween("worker-1", at.Add(-time.Hour), at.Add(time.Hour), tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.True(t, rows[0].Time.Equal(at.Truncate(time.Second)))
	assert.Equal(t, in.Values, rows[0].Values)
	assert.False(t, rows[0].Has(tsdb.FieldMemoryUsageBytes), "absent fields stay absent")

	v, ok := rows[0].Get(tsdb.FieldNetworkRxBytes)
	assert.True(t, ok, "zero is a value, not an absence")
	assert.Zero(t, v)
}

func TestStore_AppendUsesRecordTime(t *testing.T) {
	s := newStore(t, types.ResourceKindPod, types.GranularityMinute)
	old := time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)

	require.NoError(t, s.Append("default/web-0", record(old, nil)))

	_, err := os.Stat(filepath.Join(s.Dir(), "default", "web-0", "2023-12-31.psv"))
	assert.NoError(t, err)
}

func TestStore_ChronologicalAcrossPartitions(t *testing.T) {
	s := newStore(t, types.ResourceKindContainer, types.GranularityMinute)
	key := "kube-system/coredns-1/coredns"
	base := time.Date(2024, 5, 1, 23, 58, 0, 0, time.UTC)

	// Later day written first, and one file out of order.
	times := []time.Time{
		base.Add(3 * time.Minute),
		base.Add(4 * time.Minute),
		base,
		base.Add(time.Minute),
		base.Add(30 * time.Second),
	}
	for i, at := range times {
		require.NoError(t, s.Append(key, record(at, map[string]uint64{tsdb.FieldMemoryUsageBytes: uint64(i)})))
	}

	rows, err := s.GetRowsBetween(key, base.Add(-time.Hour), base.Add(time.Hour), tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, rows, len(times))
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Time.Before(rows[i-1].Time), "row %d out of order", i)
	}
}

func TestStore_RangeBounds(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append("n1", record(base.Add(time.Duration(i)*time.Minute), nil)))
	}

	rows, err := s.GetRowsBetween("n1", base.Add(2*time.Minute), base.Add(5*time.Minute), tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 4, "both ends are inclusive")
	assert.True(t, rows[0].Time.Equal(base.Add(2*time.Minute)))
	assert.True(t, rows[3].Time.Equal(base.Add(5*time.Minute)))
}

func TestStore_Pagination(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityHour)
	base := time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		require.NoError(t, s.Append("n1", record(base.Add(time.Duration(i)*time.Hour), map[string]uint64{
			tsdb.FieldMemoryUsageBytes: uint64(i),
		})))
	}
	start, end := base, base.Add(48*time.Hour)

	all, err := s.GetRowsBetween("n1", start, end, tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, all, 23)

	for _, limit := range []int{1, 4, 7, 23, 50} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			var paged []types.Record
			for offset := 0; ; offset += limit {
				page, err := s.GetRowsBetween("n1", start, end, tsdb.Page{Limit: limit, Offset: offset})
				require.NoError(t, err)
				if len(page) == 0 {
					break
				}
				assert.LessOrEqual(t, len(page), limit)
				paged = append(paged, page...)
			}
			assert.Equal(t, all, paged)
		})
	}

	t.Run("offset past end", func(t *testing.T) {
		page, err := s.GetRowsBetween("n1", start, end, tsdb.Page{Offset: 100})
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestStore_DiscardsPartialTrailingLine(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
	at := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append("n1", record(at, map[string]uint64{tsdb.FieldFsUsedBytes: 7})))

	path := filepath.Join(s.Dir(), "n1", "2024-02-02.psv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-02-02T10:01:00Z|1|2|3")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := s.GetRowsBetween("n1", at, at.Add(time.Hour), tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Time.Equal(at))
}

func TestStore_LastTime(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityHour)
	day1 := time.Date(2024, 4, 1, 16, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 4, 2, 11, 0, 0, 0, time.UTC)

	_, ok, err := s.LastTime("n1", day1)
	require.NoError(t, err)
	assert.False(t, ok, "missing partition has no rows")

	require.NoError(t, s.Append("n1", record(day2, map[string]uint64{tsdb.FieldFsUsedBytes: 1})))
	require.NoError(t, s.Append("n1", record(day1, map[string]uint64{tsdb.FieldFsUsedBytes: 2})))

	path := filepath.Join(s.Dir(), "n1", "2024-04.psv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-04-30T00:00:00Z|1")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	last, ok, err := s.LastTime("n1", day1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(day2), "latest complete row wins, whatever its position")

	_, ok, err = s.LastTime("n1", time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok, "other months are separate partitions")
}

func TestStore_SkipsMalformedLines(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
	at := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append("n1", record(at, nil)))

	path := filepath.Join(s.Dir(), "n1", "2024-02-02.psv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n2024-02-02T10:01:00Z|1|2\nnot-a-time|||||||||||||||\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.Append("n1", record(at.Add(2*time.Minute), map[string]uint64{tsdb.FieldFsInodes: 3})))

	rows, err := s.GetRowsBetween("n1", at, at.Add(time.Hour), tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].Has(tsdb.FieldFsInodes))
}

func TestStore_MissingDataIsEmpty(t *testing.T) {
	s := newStore(t, types.ResourceKindPod, types.GranularityDay)

	rows, err := s.GetRowsBetween("ns/never-seen", time.Now().AddDate(-3, 0, 0), time.Now(), tsdb.Page{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_RangeGuards(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("inverted range", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
		_, err := s.GetRowsBetween("n1", now, now.Add(-time.Second), tsdb.Page{})
		assert.ErrorIs(t, err, tsdb.ErrInvalidRange)
	})

	t.Run("minute range spanning decades", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
		_, err := s.GetRowsBetween("n1", now.AddDate(-20, 0, 0), now, tsdb.Page{})
		assert.ErrorIs(t, err, tsdb.ErrRangeTooLarge)
	})

	t.Run("day range spanning millennia", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityDay)
		_, err := s.GetRowsBetween("n1", now, time.Date(9000, 1, 1, 0, 0, 0, 0, time.UTC), tsdb.Page{})
		assert.ErrorIs(t, err, tsdb.ErrRangeTooLarge)
	})

	t.Run("day range spanning decades is fine", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityDay)
		_, err := s.GetRowsBetween("n1", now.AddDate(-50, 0, 0), now, tsdb.Page{})
		assert.NoError(t, err)
	})
}

func TestStore_InvalidInput(t *testing.T) {
	s := newStore(t, types.ResourceKindPod, types.GranularityMinute)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		key  string
	}{
		{"missing namespace", "web-0"},
		{"too many segments", "a/b/c"},
		{"empty segment", "default/"},
		{"parent reference", "../etc"},
		{"dot segment", "./web"},
		{"backslash", "default/web\\0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Append(tt.key, record(at, nil))
			assert.ErrorIs(t, err, tsdb.ErrInvalidKey)
		})
	}

	t.Run("field outside schema", func(t *testing.T) {
		err := s.Append("default/web-0", record(at, map[string]uint64{tsdb.FieldFsUsedBytes: 1}))
		assert.ErrorIs(t, err, tsdb.ErrUnknownField)
	})

	t.Run("zero time", func(t *testing.T) {
		err := s.Append("default/web-0", types.Record{})
		assert.ErrorIs(t, err, tsdb.ErrInvalidRecord)
	})

	t.Run("column of unknown field", func(t *testing.T) {
		_, err := s.GetColumnBetween("default/web-0", "bogus", at, at, tsdb.Page{})
		assert.ErrorIs(t, err, tsdb.ErrUnknownField)
	})
}

func TestStore_GetColumnBetween(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityMinute)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append("n1", record(at, map[string]uint64{
		tsdb.FieldMemoryUsageBytes: 10,
		tsdb.FieldFsUsedBytes:      20,
	})))
	require.NoError(t, s.Append("n1", record(at.Add(time.Minute), map[string]uint64{
		tsdb.FieldFsUsedBytes: 30,
	})))

	rows, err := s.GetColumnBetween("n1", tsdb.FieldMemoryUsageBytes, at, at.Add(time.Hour), tsdb.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]uint64{tsdb.FieldMemoryUsageBytes: 10}, rows[0].Values)
	assert.Empty(t, rows[1].Values)
}

func TestStore_Keys(t *testing.T) {
	s := newStore(t, types.ResourceKindContainer, types.GranularityHour)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, key := range []string{"ns-b/pod-1/app", "ns-a/pod-2/sidecar", "ns-a/pod-2/app"} {
		require.NoError(t, s.Append(key, record(at, nil)))
	}

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"ns-a/pod-2/app", "ns-a/pod-2/sidecar", "ns-b/pod-1/app"}, keys)
}

func TestStore_CleanupOlderThan(t *testing.T) {
	t.Run("day files compare by year", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityDay)
		for _, y := range []int{2019, 2020, 2021} {
			require.NoError(t, s.Append("n1", record(time.Date(y, 7, 1, 0, 0, 0, 0, time.UTC), nil)))
		}

		deleted, err := s.CleanupOlderThan("n1", time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		parts, err := s.Partitions("n1")
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, "2020", parts[0].Bucket, "file for the cutoff year is retained")
		assert.Equal(t, "2021", parts[1].Bucket)
	})

	t.Run("minute files compare by date in batches", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityMinute, tsdb.WithDeleteBatchSize(2))
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for d := 0; d < 7; d++ {
			require.NoError(t, s.Append("n1", record(base.AddDate(0, 0, d), nil)))
		}

		deleted, err := s.CleanupOlderThan("n1", base.AddDate(0, 0, 5).Add(6*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 5, deleted)

		parts, err := s.Partitions("n1")
		require.NoError(t, err)
		assert.Len(t, parts, 2)
	})

	t.Run("removes emptied key directories", func(t *testing.T) {
		s := newStore(t, types.ResourceKindPod, types.GranularityHour)
		require.NoError(t, s.Append("ns/old-pod", record(time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), nil)))
		require.NoError(t, s.Append("ns/live-pod", record(time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), nil)))

		deleted, err := s.CleanupOlderThan("ns/old-pod", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = os.Stat(filepath.Join(s.Dir(), "ns", "old-pod"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(s.Dir(), "ns", "live-pod"))
		assert.NoError(t, err)
	})

	t.Run("ignores foreign files", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityHour)
		require.NoError(t, s.Append("n1", record(time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), nil)))
		foreign := filepath.Join(s.Dir(), "n1", "notes.psv")
		require.NoError(t, os.WriteFile(foreign, []byte("x\n"), 0644))

		deleted, err := s.CleanupOlderThan("n1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
		_, err = os.Stat(foreign)
		assert.NoError(t, err)
	})

	t.Run("missing key is not an error", func(t *testing.T) {
		s := newStore(t, types.ResourceKindNode, types.GranularityHour)
		deleted, err := s.CleanupOlderThan("ghost", time.Now())
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

type fakeArchiver struct {
	failBucket string
	archived   []string
}

func (f *fakeArchiver) Archive(_ context.Context, p tsdb.Partition) error {
	if p.Bucket == f.failBucket {
		return errors.New("upload failed")
	}
	f.archived = append(f.archived, p.Bucket)
	return nil
}

func TestStore_ArchiveOlderThan(t *testing.T) {
	s := newStore(t, types.ResourceKindNode, types.GranularityHour)
	for _, m := range []time.Month{time.January, time.February, time.March, time.April} {
		require.NoError(t, s.Append("n1", record(time.Date(2024, m, 10, 0, 0, 0, 0, time.UTC), nil)))
	}
	archiver := &fakeArchiver{failBucket: "2024-02"}

	deleted, err := s.ArchiveOlderThan(context.Background(), "n1", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), archiver)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"2024-01", "2024-03"}, archiver.archived)

	parts, err := s.Partitions("n1")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "2024-02", parts[0].Bucket, "failed upload keeps the file")
	assert.Equal(t, "2024-04", parts[1].Bucket)
}
