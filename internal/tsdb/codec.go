package tsdb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

const columnSeparator = "|"

// EncodeLine renders a record as one partition line, including the trailing newline.
// The timestamp is written in UTC at second precision.
func EncodeLine(schema *Schema, rec types.Record) string {
	var b strings.Builder
	b.WriteString(rec.Time.UTC().Truncate(time.Second).Format(time.RFC3339))
	for _, f := range schema.Fields {
		b.WriteString(columnSeparator)
		if v, ok := rec.Values[f.Name]; ok {
			b.WriteString(strconv.FormatUint(v, 10))
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// ParseLine decodes one partition line without its trailing newline
func ParseLine(schema *Schema, line string) (types.Record, error) {
	cols := strings.Split(line, columnSeparator)
	if len(cols) != len(schema.Fields)+1 {
		return types.Record{}, fmt.Errorf("expected %d columns, got %d", len(schema.Fields)+1, len(cols))
	}

	ts, err := parseTimestamp(cols[0])
	if err != nil {
		return types.Record{}, err
	}

	rec := types.NewRecord(ts)
	for i, f := range schema.Fields {
		col := cols[i+1]
		if col == "" {
			continue
		}
		v, err := strconv.ParseUint(col, 10, 64)
		if err != nil {
			return types.Record{}, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		rec.Values[f.Name] = v
	}
	return rec, nil
}

// LineTime decodes only the timestamp column of a partition line
func LineTime(line string) (time.Time, error) {
	ts, _, _ := strings.Cut(line, columnSeparator)
	return parseTimestamp(ts)
}

func parseTimestamp(col string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, col)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return ts.UTC(), nil
}
