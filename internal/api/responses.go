package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tsanders-rh/kubecostd/internal/query"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// QueryResponse wraps query results with the window they were read from
type QueryResponse struct {
	Data  interface{} `json:"data"`
	Query QueryMeta   `json:"query"`
}

// QueryMeta describes the query a response answers
type QueryMeta struct {
	Kind       types.ResourceKind `json:"kind,omitempty"`
	Keys       []string           `json:"keys,omitempty"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Field      string             `json:"field,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset,omitempty"`
	Resolution query.Resolution   `json:"resolution"`
}

// NewQueryMeta builds the metadata echoed back for q
func NewQueryMeta(q types.RangeQuery) QueryMeta {
	return QueryMeta{
		Kind:       q.Kind,
		Keys:       q.Keys,
		Start:      q.Start,
		End:        q.End,
		Field:      q.Field,
		Limit:      q.Limit,
		Offset:     q.Offset,
		Resolution: query.ResolveGranularity(q.Granularity, q.Start, q.End),
	}
}

// SuccessQuery returns a 200 OK response carrying query metadata
func SuccessQuery(c echo.Context, data interface{}, q types.RangeQuery) error {
	return c.JSON(http.StatusOK, &QueryResponse{
		Data:  data,
		Query: NewQueryMeta(q),
	})
}

// SuccessOK returns a 200 OK response
func SuccessOK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}
