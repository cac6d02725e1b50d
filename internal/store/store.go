// Package store is the persistence collaborator of the sync subsystem. All
// writes are entity-scoped create-or-update operations keyed by the
// platform's external id, which is what keeps concurrent replays safe.
package store

import (
	"context"
	"errors"

	"github.com/xelth-com/salonsync/internal/models"
)

var (
	// ErrNotFound is returned by lookups that match no row
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a write would violate a unique key
	ErrConflict = errors.New("store: unique constraint violation")
)

// CostCandidate is a variant whose line items still lack a unit cost
type CostCandidate struct {
	VariantID string `gorm:"column:variant_id"`
	SKU       string `gorm:"column:sku"`
}

// Store is the full persistence surface. Consumers declare the narrower
// interface they need.
type Store interface {
	FindCustomerByExternalID(ctx context.Context, externalID string) (*models.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetCustomer(ctx context.Context, id uint) (*models.Customer, error)
	// SaveCustomer updates by ID when set, otherwise inserts or overwrites
	// the row holding the same ExternalID.
	SaveCustomer(ctx context.Context, c *models.Customer) error

	FindOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	// ReplaceOrder upserts the order and swaps its full line item set in
	// one transaction.
	ReplaceOrder(ctx context.Context, o *models.Order, items []models.OrderLineItem) error
	ListLineItems(ctx context.Context, orderID uint) ([]models.OrderLineItem, error)

	GetSalesRep(ctx context.Context, id uint) (*models.SalesRep, error)
	FindSalesRepByAlias(ctx context.Context, alias string) (*models.SalesRep, error)
	FindSalesRepByName(ctx context.Context, name string) (*models.SalesRep, error)
	ListSalesReps(ctx context.Context) ([]models.SalesRep, error)
	MatchTagRules(ctx context.Context, tags []string) ([]models.SalesRepTagRule, error)
	CreateSalesRep(ctx context.Context, rep *models.SalesRep) error
	CreateSalesRepAlias(ctx context.Context, alias *models.SalesRepAlias) error
	CreateTagRule(ctx context.Context, rule *models.SalesRepTagRule) error

	GetSyncState(ctx context.Context, resource string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
	RecordWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error

	ListProductsMissingVendor(ctx context.Context, limit int) ([]string, error)
	SetVendorForProduct(ctx context.Context, productID, vendor string) (int64, error)
	ListVariantsMissingCost(ctx context.Context, limit int) ([]CostCandidate, error)
	SetCostForVariant(ctx context.Context, variantID string, cost float64) (int64, error)
}
