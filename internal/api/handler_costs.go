package api

import (
	"github.com/labstack/echo/v4"

	"github.com/tsanders-rh/kubecostd/internal/query"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// CostHandler serves cost, trend and efficiency reports
type CostHandler struct {
	query *query.Service
}

// NewCostHandler creates a new cost handler
func NewCostHandler(svc *query.Service) *CostHandler {
	return &CostHandler{query: svc}
}

// List handles GET /api/v1/costs/:kind
func (h *CostHandler) List(c echo.Context) error {
	q, err := bindRangeQuery(c, types.ResourceKind(c.Param("kind")))
	if err != nil {
		return respondBindError(c, err)
	}

	costs, err := h.query.Costs(c.Request().Context(), q)
	if err != nil {
		return ErrorFromQuery(c, err)
	}

	return SuccessQuery(c, costs, q)
}

// Summary handles GET /api/v1/costs/:kind/summary
func (h *CostHandler) Summary(c echo.Context) error {
	q, err := bindRangeQuery(c, types.ResourceKind(c.Param("kind")))
	if err != nil {
		return respondBindError(c, err)
	}

	summary, err := h.query.Summary(c.Request().Context(), q)
	if err != nil {
		return ErrorFromQuery(c, err)
	}

	return SuccessQuery(c, summary, q)
}

// Trend handles GET /api/v1/costs/:kind/trend
func (h *CostHandler) Trend(c echo.Context) error {
	q, err := bindRangeQuery(c, types.ResourceKind(c.Param("kind")))
	if err != nil {
		return respondBindError(c, err)
	}

	trend, err := h.query.Trend(c.Request().Context(), q)
	if err != nil {
		return ErrorFromQuery(c, err)
	}

	return SuccessQuery(c, trend, q)
}

// NodeCapacity handles GET /api/v1/costs/nodes/capacity
func (h *CostHandler) NodeCapacity(c echo.Context) error {
	q, err := bindRangeQuery(c, types.ResourceKindNode)
	if err != nil {
		return respondBindError(c, err)
	}

	costs, err := h.query.NodeCosts(c.Request().Context(), q)
	if err != nil {
		return ErrorFromQuery(c, err)
	}

	return SuccessQuery(c, costs, q)
}

// Efficiency handles GET /api/v1/efficiency
func (h *CostHandler) Efficiency(c echo.Context) error {
	q, err := bindRangeQuery(c, types.ResourceKindNode)
	if err != nil {
		return respondBindError(c, err)
	}

	eff, err := h.query.Efficiency(c.Request().Context(), q)
	if err != nil {
		return ErrorFromQuery(c, err)
	}

	return SuccessQuery(c, eff, q)
}
