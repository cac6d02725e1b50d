package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xelth-com/salonsync/internal/models"
)

// MemoryStore holds all state in memory. It enforces the same unique keys
// as the relational schema and backs the tests and local dry runs.
type MemoryStore struct {
	mu sync.Mutex

	customers  map[uint]models.Customer
	orders     map[uint]models.Order
	lineItems  map[uint][]models.OrderLineItem // by order id
	reps       map[uint]models.SalesRep
	aliases    map[string]uint // alias -> rep id
	tagRules   []models.SalesRepTagRule
	syncStates map[string]models.SyncState
	deliveries []models.WebhookDelivery

	nextID uint
	Clock  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:  make(map[uint]models.Customer),
		orders:     make(map[uint]models.Order),
		lineItems:  make(map[uint][]models.OrderLineItem),
		reps:       make(map[uint]models.SalesRep),
		aliases:    make(map[string]uint),
		syncStates: make(map[string]models.SyncState),
		Clock:      func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) id() uint {
	m.nextID++
	return m.nextID
}

func cloneCustomer(c models.Customer) *models.Customer {
	if c.Tags != nil {
		c.Tags = append(c.Tags[:0:0], c.Tags...)
	}
	return &c
}

func cloneOrder(o models.Order) *models.Order {
	if o.Tags != nil {
		o.Tags = append(o.Tags[:0:0], o.Tags...)
	}
	o.LineItems = nil
	return &o
}

// ---- customers ----

func (m *MemoryStore) FindCustomerByExternalID(_ context.Context, externalID string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customerByExternalID(externalID); ok {
		return cloneCustomer(c), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) customerByExternalID(externalID string) (models.Customer, bool) {
	for _, id := range m.sortedCustomerIDs() {
		c := m.customers[id]
		if c.ExternalID != nil && *c.ExternalID == externalID {
			return c, true
		}
	}
	return models.Customer{}, false
}

func (m *MemoryStore) sortedCustomerIDs() []uint {
	ids := make([]uint, 0, len(m.customers))
	for id := range m.customers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MemoryStore) FindCustomerByEmail(_ context.Context, email string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.sortedCustomerIDs() {
		c := m.customers[id]
		if c.Email != nil && *c.Email == email {
			return cloneCustomer(c), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetCustomer(_ context.Context, id uint) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCustomer(c), nil
}

func (m *MemoryStore) SaveCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	if c.ID == 0 && c.ExternalID != nil {
		if existing, ok := m.customerByExternalID(*c.ExternalID); ok {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
			if c.SalesRep == nil {
				c.SalesRep = existing.SalesRep
			}
			if c.SalesRepID == nil {
				c.SalesRepID = existing.SalesRepID
			}
		}
	}
	if c.ExternalID != nil {
		if other, ok := m.customerByExternalID(*c.ExternalID); ok && other.ID != c.ID {
			return ErrConflict
		}
	}
	if c.ID == 0 {
		c.ID = m.id()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.customers[c.ID] = *cloneCustomer(*c)
	return nil
}

// CustomerCount reports how many customers are stored
func (m *MemoryStore) CustomerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.customers)
}

// ---- orders ----

func (m *MemoryStore) FindOrderByExternalID(_ context.Context, externalID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ExternalID == externalID {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ReplaceOrder(_ context.Context, o *models.Order, items []models.OrderLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	for _, existing := range m.orders {
		if existing.ExternalID == o.ExternalID {
			if o.ID != 0 && o.ID != existing.ID {
				return ErrConflict
			}
			o.ID = existing.ID
			o.CreatedAt = existing.CreatedAt
		}
	}
	if o.ID == 0 {
		o.ID = m.id()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	m.orders[o.ID] = *cloneOrder(*o)

	replaced := make([]models.OrderLineItem, 0, len(items))
	for i := range items {
		items[i].ID = m.id()
		items[i].OrderID = o.ID
		replaced = append(replaced, items[i])
	}
	m.lineItems[o.ID] = replaced
	return nil
}

func (m *MemoryStore) ListLineItems(_ context.Context, orderID uint) ([]models.OrderLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderLineItem(nil), m.lineItems[orderID]...), nil
}

// OrderCount reports how many orders are stored
func (m *MemoryStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ---- sales reps ----

func (m *MemoryStore) GetSalesRep(_ context.Context, id uint) (*models.SalesRep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.reps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rep, nil
}

func (m *MemoryStore) FindSalesRepByAlias(_ context.Context, alias string) (*models.SalesRep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.aliases[alias]
	if !ok {
		return nil, ErrNotFound
	}
	rep, ok := m.reps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rep, nil
}

func (m *MemoryStore) FindSalesRepByName(_ context.Context, name string) (*models.SalesRep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rep := range m.sortedReps() {
		if strings.EqualFold(rep.Name, name) {
			return &rep, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) sortedReps() []models.SalesRep {
	reps := make([]models.SalesRep, 0, len(m.reps))
	for _, rep := range m.reps {
		reps = append(reps, rep)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].ID < reps[j].ID })
	return reps
}

func (m *MemoryStore) ListSalesReps(_ context.Context) ([]models.SalesRep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedReps(), nil
}

func (m *MemoryStore) MatchTagRules(_ context.Context, tags []string) ([]models.SalesRepTagRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out []models.SalesRepTagRule
	for _, rule := range m.tagRules {
		if !want[strings.ToLower(rule.Tag)] {
			continue
		}
		if rep, ok := m.reps[rule.SalesRepID]; ok {
			rule.SalesRep = &rep
		}
		out = append(out, rule)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) CreateSalesRep(_ context.Context, rep *models.SalesRep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reps {
		if existing.Name == rep.Name {
			return ErrConflict
		}
	}
	rep.ID = m.id()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = m.Clock()
	}
	m.reps[rep.ID] = *rep
	return nil
}

func (m *MemoryStore) CreateSalesRepAlias(_ context.Context, alias *models.SalesRepAlias) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.aliases[alias.Alias]; exists {
		return ErrConflict
	}
	alias.ID = m.id()
	m.aliases[alias.Alias] = alias.SalesRepID
	return nil
}

func (m *MemoryStore) CreateTagRule(_ context.Context, rule *models.SalesRepTagRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = m.id()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = m.Clock()
	}
	stored := *rule
	stored.SalesRep = nil
	m.tagRules = append(m.tagRules, stored)
	return nil
}

// ---- sync bookkeeping ----

func (m *MemoryStore) GetSyncState(_ context.Context, resource string) (*models.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.syncStates[resource]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (m *MemoryStore) SaveSyncState(_ context.Context, state *models.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.syncStates[state.Resource]; ok {
		state.ID = existing.ID
	} else {
		state.ID = m.id()
	}
	state.UpdatedAt = m.Clock()
	m.syncStates[state.Resource] = *state
	return nil
}

func (m *MemoryStore) ListSyncStates(_ context.Context) ([]models.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SyncState, 0, len(m.syncStates))
	for _, st := range m.syncStates {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out, nil
}

func (m *MemoryStore) RecordWebhookDelivery(_ context.Context, d *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.id()
	m.deliveries = append(m.deliveries, *d)
	return nil
}

// Deliveries returns the recorded webhook audit rows
func (m *MemoryStore) Deliveries() []models.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WebhookDelivery(nil), m.deliveries...)
}

// ---- enrichment ----

func (m *MemoryStore) eachLineItem(fn func(item *models.OrderLineItem)) {
	for orderID := range m.lineItems {
		items := m.lineItems[orderID]
		for i := range items {
			fn(&items[i])
		}
	}
}

func (m *MemoryStore) ListProductsMissingVendor(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	m.eachLineItem(func(item *models.OrderLineItem) {
		if item.Vendor == nil && item.ProductID != nil {
			seen[*item.ProductID] = true
		}
	})
	return sortedLimited(seen, limit), nil
}

func (m *MemoryStore) SetVendorForProduct(_ context.Context, productID, vendor string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.eachLineItem(func(item *models.OrderLineItem) {
		if item.Vendor == nil && item.ProductID != nil && *item.ProductID == productID {
			v := vendor
			item.Vendor = &v
			n++
		}
	})
	return n, nil
}

func (m *MemoryStore) ListVariantsMissingCost(_ context.Context, limit int) ([]CostCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skus := make(map[string]string)
	seen := make(map[string]bool)
	m.eachLineItem(func(item *models.OrderLineItem) {
		if item.UnitCost != nil || item.VariantID == nil {
			return
		}
		seen[*item.VariantID] = true
		if item.SKU != nil && *item.SKU > skus[*item.VariantID] {
			skus[*item.VariantID] = *item.SKU
		}
	})
	var out []CostCandidate
	for _, id := range sortedLimited(seen, limit) {
		out = append(out, CostCandidate{VariantID: id, SKU: skus[id]})
	}
	return out, nil
}

func (m *MemoryStore) SetCostForVariant(_ context.Context, variantID string, cost float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.eachLineItem(func(item *models.OrderLineItem) {
		if item.UnitCost == nil && item.VariantID != nil && *item.VariantID == variantID {
			c := cost
			item.UnitCost = &c
			n++
		}
	})
	return n, nil
}

func sortedLimited(set map[string]bool, limit int) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
