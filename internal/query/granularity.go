package query

import (
	"fmt"
	"time"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

const (
	// MaxMinuteSpan is the widest range served from minute series
	MaxMinuteSpan = 2 * time.Hour
	// MaxHourSpan is the widest range served from hour series
	MaxHourSpan = 45 * 24 * time.Hour
)

// Resolution is the outcome of choosing a granularity for a range
type Resolution struct {
	Requested   types.Granularity `json:"requested,omitempty"`
	Granularity types.Granularity `json:"granularity"`
	Honored     bool              `json:"honored"`
	Reason      string            `json:"reason,omitempty"`
}

// Valid reports whether g can serve the range [start, end]
func Valid(g types.Granularity, start, end time.Time) bool {
	span := end.Sub(start)
	switch g {
	case types.GranularityMinute:
		return span <= MaxMinuteSpan
	case types.GranularityHour:
		return span <= MaxHourSpan
	case types.GranularityDay:
		return true
	default:
		return false
	}
}

// Auto returns the finest granularity that can serve the range
func Auto(start, end time.Time) types.Granularity {
	for _, g := range types.Granularities {
		if Valid(g, start, end) {
			return g
		}
	}
	return types.GranularityDay
}

// ResolveGranularity keeps the requested granularity when it can serve the
// range and otherwise substitutes the automatic choice
func ResolveGranularity(requested types.Granularity, start, end time.Time) Resolution {
	auto := Auto(start, end)
	res := Resolution{Requested: requested, Granularity: auto}

	switch {
	case requested == "":
		res.Reason = "no granularity requested"
	case !isKnown(requested):
		res.Reason = fmt.Sprintf("unknown granularity %q", requested)
	case !Valid(requested, start, end):
		res.Reason = fmt.Sprintf("%s granularity cannot serve a range of %s", requested, end.Sub(start))
	default:
		res.Granularity = requested
		res.Honored = true
	}
	return res
}

func isKnown(g types.Granularity) bool {
	_, err := types.ParseGranularity(string(g))
	return err == nil
}
