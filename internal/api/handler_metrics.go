package api

import (
	"github.com/labstack/echo/v4"

	"github.com/tsanders-rh/kubecostd/internal/query"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// MetricsHandler serves raw usage rows
type MetricsHandler struct {
	query *query.Service
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(svc *query.Service) *MetricsHandler {
	return &MetricsHandler{query: svc}
}

// Rows handles GET /api/v1/metrics/:kind
func (h *MetricsHandler) Rows(c echo.Context) error {
	q, err := bindRangeQuery(c, types.ResourceKind(c.Param("kind")))
	if err != nil {
		return respondBindError(c, err)
	}

	rows, err := h.query.Rows(c.Request().Context(), q)
	if err != nil {
		return ErrorFromQuery(c, err)
	}

	return SuccessQuery(c, rows, q)
}
