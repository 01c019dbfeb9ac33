package api

import (
	"github.com/labstack/echo/v4"

	"github.com/tsanders-rh/kubecostd/internal/query"
)

// PriceHandler serves the unit prices applied to usage
type PriceHandler struct {
	query *query.Service
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(svc *query.Service) *PriceHandler {
	return &PriceHandler{query: svc}
}

// Current handles GET /api/v1/prices
func (h *PriceHandler) Current(c echo.Context) error {
	prices, err := h.query.Prices(c.Request().Context())
	if err != nil {
		return ErrorInternal(c, err.Error())
	}

	return SuccessOK(c, prices)
}
