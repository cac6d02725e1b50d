package sync

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.Clock = func() time.Time { return fixedNow }
	eng := NewEngine(st, NewRepResolver(st))
	eng.Now = func() time.Time { return fixedNow }
	return eng, st
}

func mustPayload(t *testing.T, raw string) Payload {
	t.Helper()
	p, err := DecodePayload([]byte(raw))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	return p
}

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(event string, _ interface{}) {
	r.events = append(r.events, event)
}

func TestUpsertCustomerIsIdempotent(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	p := mustPayload(t, `{
		"id": 901,
		"email": " Jane@Salon.Example ",
		"first_name": "Jane",
		"last_name": "Doe",
		"tags": "vip, wholesale ,VIP",
		"default_address": {"city": "Austin", "zip": "78701", "company": ""}
	}`)

	first, err := eng.UpsertCustomer(ctx, p)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !first.Created {
		t.Errorf("expected first upsert to create")
	}
	before, _ := st.GetCustomer(ctx, first.CustomerID)

	second, err := eng.UpsertCustomer(ctx, p)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Created || second.CustomerID != first.CustomerID {
		t.Fatalf("replay should update the same row, got %+v", second)
	}
	after, _ := st.GetCustomer(ctx, first.CustomerID)

	if !reflect.DeepEqual(before, after) {
		t.Errorf("state changed on replay:\n before %+v\n after  %+v", before, after)
	}
	if st.CustomerCount() != 1 {
		t.Errorf("expected 1 customer, got %d", st.CustomerCount())
	}
	if after.Email == nil || *after.Email != "jane@salon.example" {
		t.Errorf("email not normalized: %v", after.Email)
	}
	if after.DisplayName != "Jane Doe" {
		t.Errorf("display name = %q", after.DisplayName)
	}
	if after.Company != nil {
		t.Errorf("blank company should be nil, got %q", *after.Company)
	}
	if got := []string(after.Tags); !reflect.DeepEqual(got, []string{"vip", "wholesale"}) {
		t.Errorf("tags = %v", got)
	}
}

func TestUpsertCustomerLinksByEmail(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	email := "owner@shearbliss.example"
	local := &models.Customer{Email: &email, DisplayName: "Shear Bliss"}
	if err := st.SaveCustomer(ctx, local); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": "77", "email": "OWNER@shearbliss.example", "company": "Shear Bliss LLC"}`))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.CustomerID != local.ID || !res.Linked || res.Created {
		t.Fatalf("expected link onto local record %d, got %+v", local.ID, res)
	}

	// Same email, no external id: must not spawn a second record for 77
	if _, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"email": "owner@shearbliss.example"}`)); err != ErrMissingExternalID {
		t.Fatalf("expected ErrMissingExternalID, got %v", err)
	}

	// Different external id sharing the email gets its own record
	other, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": "78", "email": "owner@shearbliss.example"}`))
	if err != nil {
		t.Fatalf("upsert other: %v", err)
	}
	if other.CustomerID == local.ID || !other.Created {
		t.Errorf("external id 78 must not take over customer %d: %+v", local.ID, other)
	}

	again, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": "77", "email": "owner@shearbliss.example"}`))
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if again.CustomerID != local.ID || again.Linked {
		t.Errorf("external id match expected on %d, got %+v", local.ID, again)
	}
	if st.CustomerCount() != 2 {
		t.Errorf("expected 2 customers, got %d", st.CustomerCount())
	}
}

func seedRep(t *testing.T, st *store.MemoryStore, name string, tags ...string) *models.SalesRep {
	t.Helper()
	ctx := context.Background()
	rep := &models.SalesRep{Name: name, Active: true}
	if err := st.CreateSalesRep(ctx, rep); err != nil {
		t.Fatalf("create rep: %v", err)
	}
	for _, tag := range tags {
		if err := st.CreateTagRule(ctx, &models.SalesRepTagRule{Tag: tag, SalesRepID: rep.ID}); err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}
	return rep
}

func TestUpsertCustomerNeverClearsRep(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedRep(t, st, "Maria Lopez", "territory-west")

	res, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 5, "tags": ["territory-west"]}`))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.SalesRep == nil || *res.SalesRep != "Maria Lopez" {
		t.Fatalf("expected rep Maria Lopez, got %v", res.SalesRep)
	}

	if _, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 5, "tags": "unmapped"}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c, _ := st.GetCustomer(ctx, res.CustomerID)
	if c.SalesRep == nil || *c.SalesRep != "Maria Lopez" {
		t.Errorf("rep was cleared: %v", c.SalesRep)
	}
	if got := []string(c.Tags); !reflect.DeepEqual(got, []string{"unmapped"}) {
		t.Errorf("tags should be replaced, got %v", got)
	}
}

func TestUpsertOrderWithUnknownCustomer(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.UpsertOrder(ctx, mustPayload(t, `{
		"id": "1001",
		"customer": {"id": "55"},
		"line_items": [{"id": "a", "sku": "X1", "quantity": 2, "price": "10.00"}]
	}`))
	if err != nil {
		t.Fatalf("upsert order: %v", err)
	}
	if res.CustomerID != nil {
		t.Errorf("expected nil customer, got %d", *res.CustomerID)
	}
	if st.CustomerCount() != 0 {
		t.Errorf("order upsert must not create customers, got %d", st.CustomerCount())
	}

	order, err := st.FindOrderByExternalID(ctx, "1001")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if order.ExternalCustomerID == nil || *order.ExternalCustomerID != "55" {
		t.Errorf("external customer id not kept: %v", order.ExternalCustomerID)
	}
	items, _ := st.ListLineItems(ctx, order.ID)
	if len(items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(items))
	}
	if items[0].Quantity == nil || *items[0].Quantity != 2 {
		t.Errorf("quantity = %v", items[0].Quantity)
	}
	if items[0].LineTotal == nil || *items[0].LineTotal != 20 {
		t.Errorf("line total = %v", items[0].LineTotal)
	}
}

func TestUpsertOrderLinksKnownCustomer(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cust, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 55, "email": "a@b.example"}`))
	if err != nil {
		t.Fatalf("upsert customer: %v", err)
	}
	res, err := eng.UpsertOrder(ctx, mustPayload(t, `{"id": 1002, "customer_id": 55, "email": "different@b.example"}`))
	if err != nil {
		t.Fatalf("upsert order: %v", err)
	}
	if res.CustomerID == nil || *res.CustomerID != cust.CustomerID {
		t.Errorf("expected customer %d, got %v", cust.CustomerID, res.CustomerID)
	}
}

func TestUpsertOrderReplacesLineItems(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.UpsertOrder(ctx, mustPayload(t, `{
		"id": 2000,
		"line_items": [
			{"id": 1, "sku": "A", "quantity": 1, "price": "5.00"},
			{"id": 2, "sku": "B", "quantity": 1, "price": "6.00"},
			{"id": 3, "sku": "C", "quantity": 1, "price": "7.00"}
		]
	}`))
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	second, err := eng.UpsertOrder(ctx, mustPayload(t, `{
		"id": 2000,
		"line_items": [{"id": 2, "sku": "B", "quantity": 4, "price": "6.00", "total_discount": "1.50"}]
	}`))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.OrderID != first.OrderID || second.Created {
		t.Fatalf("expected overwrite of order %d, got %+v", first.OrderID, second)
	}

	items, _ := st.ListLineItems(ctx, first.OrderID)
	if len(items) != 1 {
		t.Fatalf("expected exactly 1 line item after replace, got %d", len(items))
	}
	if *items[0].SKU != "B" || *items[0].Quantity != 4 || *items[0].LineTotal != 22.5 {
		t.Errorf("unexpected line %+v", items[0])
	}
	if st.OrderCount() != 1 {
		t.Errorf("expected 1 order, got %d", st.OrderCount())
	}
}

func TestUpsertOrderIsIdempotent(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	p := mustPayload(t, `{
		"id": 3000, "name": "#3000", "order_number": 3000,
		"total_price": "42.50", "currency": "USD",
		"processed_at": "2024-04-30T10:00:00-05:00",
		"line_items": [{"id": 9, "product_id": 100, "variant_id": 200, "quantity": 1, "price": "42.50"}]
	}`)

	res, err := eng.UpsertOrder(ctx, p)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	before, _ := st.FindOrderByExternalID(ctx, "3000")
	beforeItems, _ := st.ListLineItems(ctx, res.OrderID)

	if _, err := eng.UpsertOrder(ctx, p); err != nil {
		t.Fatalf("second: %v", err)
	}
	after, _ := st.FindOrderByExternalID(ctx, "3000")
	afterItems, _ := st.ListLineItems(ctx, res.OrderID)

	if !reflect.DeepEqual(before, after) {
		t.Errorf("order changed on replay:\n before %+v\n after  %+v", before, after)
	}
	if len(beforeItems) != len(afterItems) {
		t.Fatalf("line item count changed: %d -> %d", len(beforeItems), len(afterItems))
	}
	for i := range beforeItems {
		b, a := beforeItems[i], afterItems[i]
		b.ID, a.ID = 0, 0
		if !reflect.DeepEqual(b, a) {
			t.Errorf("line %d changed on replay: %+v vs %+v", i, b, a)
		}
	}
	if after.ProcessedAt == nil || !after.ProcessedAt.Equal(time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("processed_at = %v", after.ProcessedAt)
	}
}

func TestUpsertOrderNullVersusZero(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.UpsertOrder(ctx, mustPayload(t, `{
		"id": 4000,
		"total_tax": "0.00",
		"total_discounts": "n/a",
		"subtotal_price": {"shop_money": {"amount": "12.00"}}
	}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	o, _ := st.FindOrderByExternalID(ctx, "4000")
	if o.TotalTax == nil || *o.TotalTax != 0 {
		t.Errorf("explicit zero must be kept, got %v", o.TotalTax)
	}
	if o.TotalDiscounts != nil {
		t.Errorf("invalid decimal must be nil, got %v", *o.TotalDiscounts)
	}
	if o.TotalShipping != nil {
		t.Errorf("absent decimal must be nil, got %v", *o.TotalShipping)
	}
	if o.Subtotal == nil || *o.Subtotal != 12 {
		t.Errorf("money bag subtotal = %v", o.Subtotal)
	}
}

func TestUpsertRequiresExternalID(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	if _, err := eng.UpsertOrder(ctx, mustPayload(t, `{"name": "#1"}`)); err != ErrMissingExternalID {
		t.Errorf("order: expected ErrMissingExternalID, got %v", err)
	}
	if _, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"email": "x@y.example"}`)); err != ErrMissingExternalID {
		t.Errorf("customer: expected ErrMissingExternalID, got %v", err)
	}
	if st.OrderCount() != 0 || st.CustomerCount() != 0 {
		t.Errorf("nothing should be written")
	}
}

func TestApplyCustomerTagDelta(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedRep(t, st, "Dana Kim", "glamour-brand-a")

	applied, err := eng.ApplyCustomerTagDelta(ctx, TagDelta{ExternalID: "404", Added: []string{"vip"}})
	if err != nil || applied {
		t.Fatalf("unknown customer must be a no-op, got applied=%v err=%v", applied, err)
	}
	if st.CustomerCount() != 0 {
		t.Fatalf("tag delta created a customer")
	}

	res, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 12, "tags": "vip, old"}`))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.SalesRep != nil {
		t.Fatalf("no rep expected yet, got %v", *res.SalesRep)
	}

	delta := NormalizeTagDelta(mustPayload(t, `{"customer": {"id": "gid://shopify/Customer/12"}, "tags": ["Glamour-Brand-A"]}`), false)
	if delta.ExternalID != "12" {
		t.Fatalf("delta external id = %q", delta.ExternalID)
	}
	delta.Removed = []string{"OLD"}

	applied, err = eng.ApplyCustomerTagDelta(ctx, delta)
	if err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}
	c, _ := st.GetCustomer(ctx, res.CustomerID)
	if got := []string(c.Tags); !reflect.DeepEqual(got, []string{"vip", "Glamour-Brand-A"}) {
		t.Errorf("tags = %v", got)
	}
	if c.SalesRep == nil || *c.SalesRep != "Dana Kim" {
		t.Errorf("rep = %v", c.SalesRep)
	}
}

func TestEnginePublishesEvents(t *testing.T) {
	eng, _ := newTestEngine(t)
	pub := &recordingPublisher{}
	eng.SetPublisher(pub)
	ctx := context.Background()

	if _, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 1}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.UpsertOrder(ctx, mustPayload(t, `{"id": 2}`)); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pub.events, []string{"customer.synced", "order.synced"}) {
		t.Errorf("events = %v", pub.events)
	}
}

func TestUpsertCustomerDoesNotStealLinkedRecord(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 10, "email": "shared@salon.example"}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.UpsertCustomer(ctx, mustPayload(t, `{"id": 11, "email": "shared@salon.example"}`))
	if err != nil {
		t.Fatal(err)
	}
	if second.CustomerID == first.CustomerID || !second.Created || second.Linked {
		t.Fatalf("record bound to 10 was taken over: %+v", second)
	}

	orig, _ := st.GetCustomer(ctx, first.CustomerID)
	if orig.ExternalID == nil || *orig.ExternalID != "10" {
		t.Errorf("original link changed: %v", orig.ExternalID)
	}
}
