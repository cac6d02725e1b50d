package backfill

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xelth-com/salonsync/internal/store"
	"github.com/xelth-com/salonsync/internal/sync"
)

// GraphQLClient is the platform surface enrichment queries go through
type GraphQLClient interface {
	GraphQL(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error
}

// CostFallback supplies costs the platform does not know, keyed by SKU
type CostFallback interface {
	CostBySKU(ctx context.Context, sku string) (*float64, error)
}

// EnrichStore lists line items missing vendor/cost and fills them in
type EnrichStore interface {
	ListProductsMissingVendor(ctx context.Context, limit int) ([]string, error)
	SetVendorForProduct(ctx context.Context, productID, vendor string) (int64, error)
	ListVariantsMissingCost(ctx context.Context, limit int) ([]store.CostCandidate, error)
	SetCostForVariant(ctx context.Context, variantID string, cost float64) (int64, error)
}

// EnrichResult is the structured summary of an enrichment job
type EnrichResult struct {
	LookedUp int `json:"lookedUp"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// EnrichOptions bounds one enrichment job
type EnrichOptions struct {
	RPM   int
	Limit int
}

const defaultEnrichLimit = 100

// Enricher backfills vendor names and unit costs onto stored line items
type Enricher struct {
	gql      GraphQLClient
	store    EnrichStore
	fallback CostFallback

	Sleep SleepFunc
}

// NewEnricher creates an enricher. fallback may be nil.
func NewEnricher(gql GraphQLClient, st EnrichStore, fallback CostFallback) *Enricher {
	return &Enricher{gql: gql, store: st, fallback: fallback, Sleep: sleepCtx}
}

// jobCache memoizes lookups for the lifetime of one job invocation
type jobCache struct {
	vendors  map[string]string
	skuCosts map[string]*float64
}

func newJobCache() *jobCache {
	return &jobCache{
		vendors:  make(map[string]string),
		skuCosts: make(map[string]*float64),
	}
}

const productVendorQuery = `query ProductVendor($id: ID!) {
  product(id: $id) { vendor }
}`

type productVendorData struct {
	Product *struct {
		Vendor string `json:"vendor"`
	} `json:"product"`
}

// BackfillVendors looks up the vendor of each product referenced by line
// items that lack one. API failures are counted as skipped.
func (e *Enricher) BackfillVendors(ctx context.Context, opts EnrichOptions) (EnrichResult, error) {
	var res EnrichResult
	ids, err := e.store.ListProductsMissingVendor(ctx, limitOrDefault(opts.Limit))
	if err != nil {
		return res, fmt.Errorf("list products missing vendor: %w", err)
	}

	cache := newJobCache()
	throttle := NewThrottle(opts.RPM, e.Sleep)
	log.Printf("🏷️ Vendor backfill: %d products to look up", len(ids))

	for _, productID := range ids {
		vendor, cached := cache.vendors[productID]
		if !cached {
			if err := throttle.Wait(ctx); err != nil {
				return res, err
			}
			res.LookedUp++
			var data productVendorData
			err := e.gql.GraphQL(ctx, productVendorQuery, map[string]interface{}{
				"id": "gid://shopify/Product/" + productID,
			}, &data)
			if err != nil {
				log.Printf("⚠️ Vendor lookup for product %s failed: %v", productID, err)
				res.Skipped++
				continue
			}
			if data.Product != nil {
				vendor = strings.TrimSpace(data.Product.Vendor)
			}
			cache.vendors[productID] = vendor
		}

		if vendor == "" {
			res.Skipped++
			continue
		}
		n, err := e.store.SetVendorForProduct(ctx, productID, vendor)
		if err != nil {
			log.Printf("❌ Saving vendor for product %s failed: %v", productID, err)
			res.Failed++
			continue
		}
		if n > 0 {
			res.Updated++
		} else {
			res.Skipped++
		}
	}

	log.Printf("✅ Vendor backfill: looked up %d, updated %d, skipped %d, failed %d", res.LookedUp, res.Updated, res.Skipped, res.Failed)
	return res, nil
}

const variantCostQuery = `query VariantCost($id: ID!) {
  productVariant(id: $id) { sku inventoryItem { unitCost { amount } } }
}`

type variantCostData struct {
	ProductVariant *struct {
		SKU           string `json:"sku"`
		InventoryItem *struct {
			UnitCost *struct {
				Amount string `json:"amount"`
			} `json:"unitCost"`
		} `json:"inventoryItem"`
	} `json:"productVariant"`
}

// BackfillCosts fills unit costs from the platform's inventory item cost,
// falling back to the warehouse ERP by SKU when the platform has none
func (e *Enricher) BackfillCosts(ctx context.Context, opts EnrichOptions) (EnrichResult, error) {
	var res EnrichResult
	candidates, err := e.store.ListVariantsMissingCost(ctx, limitOrDefault(opts.Limit))
	if err != nil {
		return res, fmt.Errorf("list variants missing cost: %w", err)
	}

	cache := newJobCache()
	throttle := NewThrottle(opts.RPM, e.Sleep)
	log.Printf("💰 Cost backfill: %d variants to look up", len(candidates))

	for _, cand := range candidates {
		if err := throttle.Wait(ctx); err != nil {
			return res, err
		}
		res.LookedUp++

		sku := cand.SKU
		var cost *float64
		var data variantCostData
		err := e.gql.GraphQL(ctx, variantCostQuery, map[string]interface{}{
			"id": "gid://shopify/ProductVariant/" + cand.VariantID,
		}, &data)
		if err != nil {
			log.Printf("⚠️ Cost lookup for variant %s failed: %v", cand.VariantID, err)
		} else if v := data.ProductVariant; v != nil {
			if sku == "" {
				sku = v.SKU
			}
			if v.InventoryItem != nil && v.InventoryItem.UnitCost != nil {
				cost = positiveDecimal(v.InventoryItem.UnitCost.Amount)
			}
		}

		if cost == nil {
			cost = e.fallbackCost(ctx, cache, sku)
		}
		if cost == nil {
			res.Skipped++
			continue
		}

		n, err := e.store.SetCostForVariant(ctx, cand.VariantID, *cost)
		if err != nil {
			log.Printf("❌ Saving cost for variant %s failed: %v", cand.VariantID, err)
			res.Failed++
			continue
		}
		if n > 0 {
			res.Updated++
		} else {
			res.Skipped++
		}
	}

	log.Printf("✅ Cost backfill: looked up %d, updated %d, skipped %d, failed %d", res.LookedUp, res.Updated, res.Skipped, res.Failed)
	return res, nil
}

func (e *Enricher) fallbackCost(ctx context.Context, cache *jobCache, sku string) *float64 {
	sku = strings.TrimSpace(sku)
	if e.fallback == nil || sku == "" {
		return nil
	}
	if cost, ok := cache.skuCosts[sku]; ok {
		return cost
	}
	cost, err := e.fallback.CostBySKU(ctx, sku)
	if err != nil {
		log.Printf("⚠️ Warehouse cost lookup for %s failed: %v", sku, err)
		return nil
	}
	cache.skuCosts[sku] = cost
	return cost
}

func positiveDecimal(s string) *float64 {
	f := sync.ParseDecimal(s)
	if f == nil || *f <= 0 {
		return nil
	}
	return f
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultEnrichLimit
	}
	if n > 1000 {
		return 1000
	}
	return n
}
