package tsdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/metrics"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// DefaultDeleteBatchSize is how many partition files are removed per retention batch
const DefaultDeleteBatchSize = 200

// Page restricts a range read. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Archiver receives expired partitions before they are deleted
type Archiver interface {
	Archive(ctx context.Context, p Partition) error
}

// Option configures a Store or DB
type Option func(*options)

type options struct {
	logger    *zap.Logger
	batchSize int
}

// WithLogger sets the logger used for skipped lines and failed deletes
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDeleteBatchSize sets how many files a retention batch removes
func WithDeleteBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{batchSize: DefaultDeleteBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

// Store is the append-only partitioned series store of one resource kind at one granularity.
// It holds no locks: callers guarantee a single writer per key at a time.
type Store struct {
	kind        types.ResourceKind
	granularity types.Granularity
	schema      *Schema
	bucket      bucketing
	dir         string
	batchSize   int
	logger      *zap.Logger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, kind types.ResourceKind, granularity types.Granularity, opts ...Option) (*Store, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	b, err := bucketingFor(granularity)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &Store{
		kind:        kind,
		granularity: granularity,
		schema:      schema,
		bucket:      b,
		dir:         dir,
		batchSize:   o.batchSize,
		logger:      o.logger.With(zap.String("kind", string(kind)), zap.String("granularity", string(granularity))),
	}, nil
}

// Kind returns the resource kind stored
func (s *Store) Kind() types.ResourceKind { return s.kind }

// Granularity returns the resolution of the stored series
func (s *Store) Granularity() types.Granularity { return s.granularity }

// Schema returns the column layout
func (s *Store) Schema() *Schema { return s.schema }

// Dir returns the store's root directory
func (s *Store) Dir() string { return s.dir }

func (s *Store) keyDir(key string) (string, error) {
	rel, err := keyPath(s.schema, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, rel), nil
}

func (s *Store) partitionPath(keyDir string, t time.Time) string {
	return filepath.Join(keyDir, s.bucket.name(t)+PartitionExt)
}

// Append writes one record to the partition selected by the record's own time.
// The line is synced before Append returns.
func (s *Store) Append(key string, rec types.Record) error {
	if rec.Time.IsZero() {
		return fmt.Errorf("%w: record has no time", ErrInvalidRecord)
	}
	if err := s.schema.Check(rec); err != nil {
		return err
	}
	dir, err := s.keyDir(key)
	if err != nil {
		return err
	}

	if err := s.appendLine(dir, rec); err != nil {
		metrics.AppendsTotal.WithLabelValues(string(s.kind), string(s.granularity), "error").Inc()
		return err
	}
	metrics.AppendsTotal.WithLabelValues(string(s.kind), string(s.granularity), "ok").Inc()
	return nil
}

func (s *Store) appendLine(dir string, rec types.Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create partition directory: %w", err)
	}

	path := s.partitionPath(dir, rec.Time)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open partition: %w", err)
	}

	if _, err := f.WriteString(EncodeLine(s.schema, rec)); err != nil {
		f.Close()
		return fmt.Errorf("write partition: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync partition: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partition: %w", err)
	}
	return nil
}

// GetRowsBetween returns the records of key with start <= time <= end, sorted by time.
// Missing partitions contribute no rows.
func (s *Store) GetRowsBetween(key string, start, end time.Time, page Page) ([]types.Record, error) {
	if err := s.bucket.checkRange(start, end); err != nil {
		return nil, err
	}
	dir, err := s.keyDir(key)
	if err != nil {
		return nil, err
	}

	var (
		rows    []types.Record
		scanned int
	)
	last := s.bucket.start(end)
	for b := s.bucket.start(start); !b.After(last); b = s.bucket.next(b) {
		read, err := s.readPartition(s.partitionPath(dir, b), start, end, rows)
		if err != nil {
			return nil, err
		}
		rows = read
		scanned++
	}
	metrics.PartitionsScanned.WithLabelValues(string(s.kind), string(s.granularity)).Observe(float64(scanned))

	types.SortRecords(rows)
	return paginate(rows, page), nil
}

// GetColumnBetween is GetRowsBetween with each record projected onto field
func (s *Store) GetColumnBetween(key, field string, start, end time.Time, page Page) ([]types.Record, error) {
	if !s.schema.Has(field) {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, s.kind, field)
	}
	rows, err := s.GetRowsBetween(key, start, end, page)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, len(rows))
	for i, r := range rows {
		out[i] = Project(r, field)
	}
	return out, nil
}

// readPartition appends the in-range records of one file to rows
func (s *Store) readPartition(path string, start, end time.Time, rows []types.Record) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rows, nil
		}
		return nil, fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A line without its newline is an append still in flight.
				if line != "" {
					s.logger.Debug("discarding partial trailing line", zap.String("path", path))
				}
				return rows, nil
			}
			return nil, fmt.Errorf("read partition: %w", err)
		}
		lineNo++

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		rec, err := ParseLine(s.schema, line)
		if err != nil {
			s.logger.Warn("skipping malformed partition line",
				zap.String("path", path), zap.Int("line", lineNo), zap.Error(err))
			metrics.MalformedLinesTotal.WithLabelValues(string(s.kind), string(s.granularity)).Inc()
			continue
		}
		if rec.Time.Before(start) {
			continue
		}
		if rec.Time.After(end) {
			return rows, nil
		}
		rows = append(rows, rec)
	}
}

// LastTime returns the time of the latest complete row in the partition that a
// record stamped t would be appended to. ok is false when the partition has no rows.
func (s *Store) LastTime(key string, t time.Time) (last time.Time, ok bool, err error) {
	dir, err := s.keyDir(key)
	if err != nil {
		return time.Time{}, false, err
	}

	path := s.partitionPath(dir, t)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return last, ok, nil
			}
			return time.Time{}, false, fmt.Errorf("read partition: %w", err)
		}
		ts, perr := LineTime(strings.TrimRight(line, "\r\n"))
		if perr != nil {
			continue
		}
		if !ok || ts.After(last) {
			last, ok = ts, true
		}
	}
}

func paginate(rows []types.Record, page Page) []types.Record {
	if page.Offset > 0 {
		if page.Offset >= len(rows) {
			return []types.Record{}
		}
		rows = rows[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(rows) {
		rows = rows[:page.Limit]
	}
	return rows
}

// Partitions lists the partition files of key, oldest bucket first.
// Files whose names are not bucket identifiers are ignored.
func (s *Store) Partitions(key string) ([]Partition, error) {
	dir, err := s.keyDir(key)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var parts []Partition
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), PartitionExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), PartitionExt)
		if _, err := s.bucket.parse(name); err != nil {
			continue
		}
		parts = append(parts, Partition{
			Kind:        s.kind,
			Granularity: s.granularity,
			Key:         key,
			Bucket:      name,
			Path:        filepath.Join(dir, e.Name()),
		})
	}
	// Bucket layouts sort lexically in time order.
	sort.Slice(parts, func(i, j int) bool { return parts[i].Bucket < parts[j].Bucket })
	return parts, nil
}

// expired returns the partitions whose whole bucket lies before cutoff's bucket
func (s *Store) expired(key string, cutoff time.Time) ([]Partition, error) {
	parts, err := s.Partitions(key)
	if err != nil {
		return nil, err
	}
	limit := s.bucket.start(cutoff)

	var out []Partition
	for _, p := range parts {
		b, err := s.bucket.parse(p.Bucket)
		if err != nil {
			continue
		}
		if b.Before(limit) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CleanupOlderThan deletes every partition of key whose bucket is strictly older than
// cutoff's bucket and returns how many files were removed. Deletes are batched and
// best effort: a file that cannot be removed is logged and skipped.
func (s *Store) CleanupOlderThan(key string, cutoff time.Time) (int, error) {
	parts, err := s.expired(key, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := 0; i < len(parts); i += s.batchSize {
		batch := parts[i:min(i+s.batchSize, len(parts))]
		deleted += s.removeBatch(batch)
	}

	if len(parts) > 0 {
		s.pruneEmptyDirs(key)
	}
	return deleted, nil
}

// ArchiveOlderThan hands every expired partition of key to archiver and deletes it once
// the upload succeeded. A partition whose upload fails is kept for the next sweep.
func (s *Store) ArchiveOlderThan(ctx context.Context, key string, cutoff time.Time, archiver Archiver) (int, error) {
	parts, err := s.expired(key, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := 0; i < len(parts); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		batch := parts[i:min(i+s.batchSize, len(parts))]
		archived := make([]Partition, 0, len(batch))
		for _, p := range batch {
			if err := archiver.Archive(ctx, p); err != nil {
				s.logger.Warn("failed to archive partition, keeping it",
					zap.String("path", p.Path), zap.Error(err))
				metrics.PartitionDeleteErrorsTotal.WithLabelValues(string(s.kind), string(s.granularity)).Inc()
				continue
			}
			archived = append(archived, p)
		}
		deleted += s.removeBatch(archived)
	}

	if deleted > 0 {
		s.pruneEmptyDirs(key)
	}
	return deleted, nil
}

func (s *Store) removeBatch(batch []Partition) int {
	removed := 0
	for _, p := range batch {
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to delete partition", zap.String("path", p.Path), zap.Error(err))
			metrics.PartitionDeleteErrorsTotal.WithLabelValues(string(s.kind), string(s.granularity)).Inc()
			continue
		}
		removed++
	}
	metrics.PartitionsDeletedTotal.WithLabelValues(string(s.kind), string(s.granularity)).Add(float64(removed))
	return removed
}

// pruneEmptyDirs removes the key directory and its empty parents up to the store root
func (s *Store) pruneEmptyDirs(key string) {
	dir, err := s.keyDir(key)
	if err != nil {
		return
	}
	root := filepath.Clean(s.dir)
	for dir != root && strings.HasPrefix(dir, root) {
		// Remove fails on non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Keys returns every resource key that has at least one partition file, sorted
func (s *Store) Keys() ([]string, error) {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), PartitionExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, filepath.Dir(path))
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if _, err := keyPath(s.schema, key); err != nil {
			return nil
		}
		seen[key] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
