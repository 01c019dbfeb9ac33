package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// DefaultWindow is the range served when a request names no start
const DefaultWindow = time.Hour

// MaxLimit caps the rows returned per key
const MaxLimit = 100000

// rangeParams is the query string shared by the range endpoints
type rangeParams struct {
	Keys        []string `query:"key"`
	Start       string   `query:"start"`
	End         string   `query:"end"`
	Granularity string   `query:"granularity"`
	Field       string   `query:"field"`
	Limit       int      `query:"limit"`
	Offset      int      `query:"offset"`
}

// errBadParams marks request parsing failures that should surface as 400
var errBadParams = errors.New("invalid parameters")

// bindRangeQuery reads a RangeQuery for kind from the request. An empty end
// means now and an empty start means DefaultWindow before end.
func bindRangeQuery(c echo.Context, kind types.ResourceKind) (types.RangeQuery, error) {
	var p rangeParams
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &p); err != nil {
		return types.RangeQuery{}, fmt.Errorf("%w: %v", errBadParams, err)
	}

	end := time.Now().UTC()
	if p.End != "" {
		t, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return types.RangeQuery{}, fmt.Errorf("%w: end must be RFC3339: %v", errBadParams, err)
		}
		end = t.UTC()
	}
	start := end.Add(-DefaultWindow)
	if p.Start != "" {
		t, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return types.RangeQuery{}, fmt.Errorf("%w: start must be RFC3339: %v", errBadParams, err)
		}
		start = t.UTC()
	}
	if p.Limit > MaxLimit {
		return types.RangeQuery{}, fmt.Errorf("%w: limit exceeds %d", errBadParams, MaxLimit)
	}

	q := types.RangeQuery{
		Kind:        kind,
		Keys:        p.Keys,
		Start:       start,
		End:         end,
		Granularity: types.Granularity(p.Granularity),
		Field:       p.Field,
		Limit:       p.Limit,
		Offset:      p.Offset,
	}
	if err := c.Validate(&q); err != nil {
		return types.RangeQuery{}, err
	}
	return q, nil
}

// respondBindError writes the response for a bindRangeQuery failure
func respondBindError(c echo.Context, err error) error {
	if errors.Is(err, errBadParams) {
		return ErrorBadRequest(c, err.Error())
	}
	return ErrorValidation(c, err)
}
