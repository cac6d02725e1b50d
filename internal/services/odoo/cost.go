package odoo

import (
	"context"
	"fmt"
	"strings"
)

// productCost is the subset of product.product read for cost lookups
type productCost struct {
	ID            int64   `json:"id"`
	DefaultCode   string  `json:"default_code"`
	StandardPrice float64 `json:"standard_price"`
}

// CostBySKU returns the ERP standard price for the product whose internal
// reference equals sku. A missing product or a zero price yields nil.
func (c *Client) CostBySKU(ctx context.Context, sku string) (*float64, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	domain := []interface{}{
		[]interface{}{"default_code", "=", sku},
	}
	var rows []productCost
	if err := c.SearchRead("product.product", domain, []string{"default_code", "standard_price"}, 1, &rows); err != nil {
		return nil, fmt.Errorf("odoo cost lookup for %s: %w", sku, err)
	}
	if len(rows) == 0 || rows[0].StandardPrice <= 0 {
		return nil, nil
	}
	cost := rows[0].StandardPrice
	return &cost, nil
}
