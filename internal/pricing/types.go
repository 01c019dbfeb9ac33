package pricing

import (
	"context"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Table is a named set of unit prices loaded from YAML
type Table struct {
	Name        string          `yaml:"name" validate:"required"`
	DisplayName string          `yaml:"displayName"`
	Description string          `yaml:"description"`
	Enabled     bool            `yaml:"enabled"`
	Prices      types.UnitPrice `yaml:"prices"`
}

// Source supplies the unit prices in effect
type Source interface {
	Current(ctx context.Context) (types.UnitPrice, error)
}

// Static is a Source that always returns the same prices
type Static types.UnitPrice

// Current returns the fixed prices
func (s Static) Current(context.Context) (types.UnitPrice, error) {
	return types.UnitPrice(s), nil
}
