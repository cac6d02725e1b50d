package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/store"
	"gorm.io/datatypes"
)

// EngineStore is the persistence surface used by the upsert engine
type EngineStore interface {
	CustomerFinder
	SaveCustomer(ctx context.Context, c *models.Customer) error
	FindOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	ReplaceOrder(ctx context.Context, o *models.Order, items []models.OrderLineItem) error
}

// EventPublisher receives a notification after each successful write
type EventPublisher interface {
	Publish(event string, data interface{})
}

// Engine converts platform payloads into internal rows with idempotent
// create-or-update semantics. Every write is a full overwrite derived from
// the payload alone, so replays converge regardless of arrival order.
type Engine struct {
	store    EngineStore
	identity *IdentityResolver
	reps     *RepResolver
	events   EventPublisher

	// Now stamps LastSyncedAt; tests freeze it
	Now func() time.Time
}

// NewEngine wires the engine and its resolvers over st
func NewEngine(st EngineStore, reps *RepResolver) *Engine {
	return &Engine{
		store:    st,
		identity: NewIdentityResolver(st),
		reps:     reps,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher registers where sync events are sent
func (e *Engine) SetPublisher(p EventPublisher) {
	e.events = p
}

func (e *Engine) publish(event string, data interface{}) {
	if e.events != nil {
		e.events.Publish(event, data)
	}
}

// CustomerResult summarizes one customer upsert
type CustomerResult struct {
	CustomerID uint    `json:"customer_id"`
	ExternalID string  `json:"external_id"`
	Created    bool    `json:"created"`
	Linked     bool    `json:"linked"` // matched by email and bound to the external id
	SalesRep   *string `json:"sales_rep,omitempty"`
}

// UpsertCustomer creates or fully updates the customer described by p.
// An existing rep assignment is only replaced when this payload's tags
// resolve to a rep; it is never cleared.
func (e *Engine) UpsertCustomer(ctx context.Context, p Payload) (CustomerResult, error) {
	c := NormalizeCustomer(p)
	if c.ExternalID == "" {
		return CustomerResult{}, ErrMissingExternalID
	}

	rep := e.reps.RepForTags(ctx, c.Tags)

	match, err := e.identity.ResolveCustomer(ctx, c)
	if err != nil {
		return CustomerResult{}, err
	}

	var cust models.Customer
	if match.Customer != nil {
		cust = *match.Customer
	}
	e.applyCustomer(&cust, c)
	if rep != nil {
		name, id := rep.Name, rep.ID
		cust.SalesRep = &name
		cust.SalesRepID = &id
	}

	if err := e.store.SaveCustomer(ctx, &cust); err != nil {
		return CustomerResult{}, fmt.Errorf("save customer %s: %w", c.ExternalID, err)
	}

	res := CustomerResult{
		CustomerID: cust.ID,
		ExternalID: c.ExternalID,
		Created:    match.Customer == nil,
		Linked:     match.IsNewMatch,
		SalesRep:   cust.SalesRep,
	}
	e.publish("customer.synced", res)
	return res, nil
}

func (e *Engine) applyCustomer(dst *models.Customer, c NormalizedCustomer) {
	extID := c.ExternalID
	now := e.Now()

	dst.ExternalID = &extID
	dst.Email = c.Email
	dst.DisplayName = c.DisplayName
	dst.FirstName = c.FirstName
	dst.LastName = c.LastName
	dst.Company = c.Company
	dst.Phone = c.Phone
	dst.Address1 = c.Address1
	dst.Address2 = c.Address2
	dst.City = c.City
	dst.Province = c.Province
	dst.Zip = c.Zip
	dst.Country = c.Country
	dst.Tags = datatypes.JSONSlice[string](append([]string{}, c.Tags...))
	dst.LastSyncedAt = &now
}

// OrderResult summarizes one order upsert
type OrderResult struct {
	OrderID    uint   `json:"order_id"`
	ExternalID string `json:"external_id"`
	Created    bool   `json:"created"`
	CustomerID *uint  `json:"customer_id"`
	LineItems  int    `json:"line_items"`
}

// UpsertOrder creates or fully overwrites the order described by p and
// replaces its line items. The owning customer is linked by exact external
// id only; an unknown customer leaves CustomerID nil and creates nothing.
func (e *Engine) UpsertOrder(ctx context.Context, p Payload) (OrderResult, error) {
	o := NormalizeOrder(p)
	if o.ExternalID == "" {
		return OrderResult{}, ErrMissingExternalID
	}

	var customerID *uint
	if o.ExternalCustomerID != "" {
		cust, err := e.store.FindCustomerByExternalID(ctx, o.ExternalCustomerID)
		switch {
		case err == nil:
			id := cust.ID
			customerID = &id
		case !errors.Is(err, store.ErrNotFound):
			return OrderResult{}, fmt.Errorf("lookup order customer %s: %w", o.ExternalCustomerID, err)
		}
	}

	now := e.Now()
	order := models.Order{
		ExternalID:        o.ExternalID,
		OrderNumber:       o.OrderNumber,
		Name:              o.Name,
		CustomerID:        customerID,
		Email:             o.Email,
		Subtotal:          o.Subtotal,
		TotalTax:          o.TotalTax,
		TotalDiscounts:    o.TotalDiscounts,
		TotalShipping:     o.TotalShipping,
		TotalPrice:        o.TotalPrice,
		Currency:          o.Currency,
		ProcessedAt:       o.ProcessedAt,
		FinancialStatus:   o.FinancialStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		Tags:              datatypes.JSONSlice[string](append([]string{}, o.Tags...)),
		LastSyncedAt:      &now,
	}
	if o.ExternalCustomerID != "" {
		extCust := o.ExternalCustomerID
		order.ExternalCustomerID = &extCust
	}

	created := true
	existing, err := e.store.FindOrderByExternalID(ctx, o.ExternalID)
	switch {
	case err == nil:
		order.ID = existing.ID
		order.CreatedAt = existing.CreatedAt
		created = false
	case !errors.Is(err, store.ErrNotFound):
		return OrderResult{}, fmt.Errorf("lookup order %s: %w", o.ExternalID, err)
	}

	items := make([]models.OrderLineItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		items = append(items, models.OrderLineItem{
			ExternalID: li.ExternalID,
			ProductID:  li.ProductID,
			VariantID:  li.VariantID,
			SKU:        li.SKU,
			Title:      li.Title,
			Quantity:   li.Quantity,
			UnitPrice:  li.UnitPrice,
			LineTotal:  li.LineTotal,
			Vendor:     li.Vendor,
		})
	}

	if err := e.store.ReplaceOrder(ctx, &order, items); err != nil {
		return OrderResult{}, fmt.Errorf("save order %s: %w", o.ExternalID, err)
	}

	res := OrderResult{
		OrderID:    order.ID,
		ExternalID: o.ExternalID,
		Created:    created,
		CustomerID: customerID,
		LineItems:  len(items),
	}
	e.publish("order.synced", res)
	return res, nil
}

// TagDelta is a narrow tag add/remove notification for one customer
type TagDelta struct {
	ExternalID string
	Added      []string
	Removed    []string
}

var tagDeltaIDPaths = candidates("customerId", "customer_id", "customer.id", "id", "admin_graphql_api_id")

// NormalizeTagDelta reads a tag-delta payload. removed selects whether the
// listed tags were added or removed.
func NormalizeTagDelta(p Payload, removed bool) TagDelta {
	d := TagDelta{ExternalID: externalID(p, tagDeltaIDPaths)}
	var tags []string
	if v, ok := firstPresent(p, tagsPaths); ok {
		tags = ParseTags(v)
	}
	if removed {
		d.Removed = tags
	} else {
		d.Added = tags
	}
	return d
}

// ApplyCustomerTagDelta updates the tags of an already-synced customer.
// It never creates a customer: an unknown external id is a no-op and
// reports applied=false.
func (e *Engine) ApplyCustomerTagDelta(ctx context.Context, d TagDelta) (bool, error) {
	if d.ExternalID == "" {
		return false, ErrMissingExternalID
	}

	cust, err := e.store.FindCustomerByExternalID(ctx, d.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup customer %s: %w", d.ExternalID, err)
	}

	removed := make(map[string]bool, len(d.Removed))
	for _, t := range d.Removed {
		removed[strings.ToLower(t)] = true
	}
	merged := make([]string, 0, len(cust.Tags)+len(d.Added))
	for _, t := range cust.Tags {
		if !removed[strings.ToLower(t)] {
			merged = append(merged, t)
		}
	}
	merged = ParseTags(append(merged, d.Added...))

	cust.Tags = datatypes.JSONSlice[string](merged)
	if rep := e.reps.RepForTags(ctx, merged); rep != nil {
		name, id := rep.Name, rep.ID
		cust.SalesRep = &name
		cust.SalesRepID = &id
	}
	now := e.Now()
	cust.LastSyncedAt = &now

	if err := e.store.SaveCustomer(ctx, cust); err != nil {
		return false, fmt.Errorf("save customer %s: %w", d.ExternalID, err)
	}

	e.publish("customer.synced", CustomerResult{
		CustomerID: cust.ID,
		ExternalID: d.ExternalID,
		SalesRep:   cust.SalesRep,
	})
	return true, nil
}
