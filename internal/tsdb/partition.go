package tsdb

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// PartitionExt is the file extension of every partition file
const PartitionExt = ".psv"

// MaxPartitionsPerQuery bounds how many buckets one range read may walk
const MaxPartitionsPerQuery = 4096

// bucketing maps record times onto partition files for one granularity
type bucketing struct {
	layout string
	unit   string
}

// Minute files hold a day, hour files a month, day files a year.
var bucketings = map[types.Granularity]bucketing{
	types.GranularityMinute: {layout: "2006-01-02", unit: "day"},
	types.GranularityHour:   {layout: "2006-01", unit: "month"},
	types.GranularityDay:    {layout: "2006", unit: "year"},
}

func bucketingFor(g types.Granularity) (bucketing, error) {
	b, ok := bucketings[g]
	if !ok {
		return bucketing{}, fmt.Errorf("no partition bucketing for granularity %q", g)
	}
	return b, nil
}

// start truncates t to the beginning of its bucket in UTC
func (b bucketing) start(t time.Time) time.Time {
	t = t.UTC()
	switch b.unit {
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

// next returns the start of the bucket following the one holding t
func (b bucketing) next(t time.Time) time.Time {
	s := b.start(t)
	switch b.unit {
	case "day":
		return s.AddDate(0, 0, 1)
	case "month":
		return s.AddDate(0, 1, 0)
	default:
		return s.AddDate(1, 0, 0)
	}
}

// name returns the bucket identifier used as the file's base name
func (b bucketing) name(t time.Time) string {
	return t.UTC().Format(b.layout)
}

// parse converts a bucket identifier back to the bucket's start
func (b bucketing) parse(name string) (time.Time, error) {
	t, err := time.ParseInLocation(b.layout, name, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bucket %q: %w", name, err)
	}
	return t, nil
}

// count returns the number of buckets touched by [start, end]
func (b bucketing) count(start, end time.Time) int64 {
	s, e := b.start(start), b.start(end)
	switch b.unit {
	case "day":
		return int64(e.Sub(s)/(24*time.Hour)) + 1
	case "month":
		return int64(e.Year()-s.Year())*12 + int64(e.Month()-s.Month()) + 1
	default:
		return int64(e.Year()-s.Year()) + 1
	}
}

// checkRange validates a read window before any file is opened
func (b bucketing) checkRange(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if n := b.count(start, end); n > MaxPartitionsPerQuery {
		return fmt.Errorf("%w: %d %s partitions exceed the limit of %d", ErrRangeTooLarge, n, b.unit, MaxPartitionsPerQuery)
	}
	return nil
}

// keyPath validates a resource key and returns its relative directory
func keyPath(schema *Schema, key string) (string, error) {
	segments := strings.Split(key, "/")
	if len(segments) != schema.KeySegments() {
		return "", fmt.Errorf("%w: %s key %q must have %d segments", ErrInvalidKey, schema.Kind, key, schema.KeySegments())
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidKey, key)
		}
		if strings.ContainsAny(seg, "\\\x00") || strings.ContainsRune(seg, filepath.Separator) {
			return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
		}
	}
	return filepath.Join(segments...), nil
}

// Partition identifies one partition file
type Partition struct {
	Kind        types.ResourceKind
	Granularity types.Granularity
	Key         string
	Bucket      string
	Path        string
}
