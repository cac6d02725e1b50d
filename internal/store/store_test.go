package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/xelth-com/salonsync/internal/database"
	"github.com/xelth-com/salonsync/internal/models"
)

func strPtr(s string) *string { return &s }

// runContract exercises behavior both implementations must share
func runContract(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("customers", func(t *testing.T) {
		if _, err := st.FindCustomerByExternalID(ctx, "404"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		c := &models.Customer{ExternalID: strPtr("1001"), Email: strPtr("a@salon.example"), DisplayName: "A"}
		if err := st.SaveCustomer(ctx, c); err != nil {
			t.Fatalf("SaveCustomer: %v", err)
		}
		if c.ID == 0 {
			t.Fatal("ID not assigned")
		}

		// A second first-sighting of the same external id lands on the same row
		dup := &models.Customer{ExternalID: strPtr("1001"), DisplayName: "A2"}
		if err := st.SaveCustomer(ctx, dup); err != nil {
			t.Fatalf("SaveCustomer (dup): %v", err)
		}
		got, err := st.FindCustomerByExternalID(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != c.ID || got.DisplayName != "A2" {
			t.Errorf("upsert did not collapse: %+v", got)
		}

		// A racing first sighting without a rep keeps the winner's rep and
		// creation time
		rep := &models.SalesRep{Name: "Winner Rep", Active: true}
		if err := st.CreateSalesRep(ctx, rep); err != nil {
			t.Fatal(err)
		}
		winner := &models.Customer{ExternalID: strPtr("1003"), DisplayName: "W", SalesRep: strPtr(rep.Name), SalesRepID: &rep.ID}
		if err := st.SaveCustomer(ctx, winner); err != nil {
			t.Fatal(err)
		}
		created, err := st.GetCustomer(ctx, winner.ID)
		if err != nil {
			t.Fatal(err)
		}
		loser := &models.Customer{ExternalID: strPtr("1003"), DisplayName: "W2", CreatedAt: created.CreatedAt.Add(time.Hour)}
		if err := st.SaveCustomer(ctx, loser); err != nil {
			t.Fatalf("SaveCustomer (loser): %v", err)
		}
		kept, err := st.GetCustomer(ctx, winner.ID)
		if err != nil {
			t.Fatal(err)
		}
		if kept.DisplayName != "W2" {
			t.Errorf("profile fields not updated: %+v", kept)
		}
		if kept.SalesRep == nil || *kept.SalesRep != "Winner Rep" || kept.SalesRepID == nil || *kept.SalesRepID != rep.ID {
			t.Errorf("rep assignment lost: %v %v", kept.SalesRep, kept.SalesRepID)
		}
		if !kept.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("created_at moved: %v -> %v", created.CreatedAt, kept.CreatedAt)
		}

		// Email-only rows can be found and later linked
		lead := &models.Customer{Email: strPtr("lead@salon.example"), DisplayName: "Lead"}
		if err := st.SaveCustomer(ctx, lead); err != nil {
			t.Fatal(err)
		}
		found, err := st.FindCustomerByEmail(ctx, "lead@salon.example")
		if err != nil || found.ID != lead.ID {
			t.Fatalf("FindCustomerByEmail: %v %+v", err, found)
		}
		found.ExternalID = strPtr("1002")
		if err := st.SaveCustomer(ctx, found); err != nil {
			t.Fatal(err)
		}
		if byID, err := st.GetCustomer(ctx, lead.ID); err != nil || byID.ExternalID == nil || *byID.ExternalID != "1002" {
			t.Errorf("link not persisted: %v %+v", err, byID)
		}
	})

	t.Run("orders", func(t *testing.T) {
		o := &models.Order{ExternalID: "5001", Name: "#1001"}
		items := []models.OrderLineItem{
			{ProductID: strPtr("p1"), VariantID: strPtr("v1"), SKU: strPtr("SKU-1")},
			{ProductID: strPtr("p2"), VariantID: strPtr("v2")},
		}
		if err := st.ReplaceOrder(ctx, o, items); err != nil {
			t.Fatalf("ReplaceOrder: %v", err)
		}
		got, err := st.ListLineItems(ctx, o.ID)
		if err != nil || len(got) != 2 {
			t.Fatalf("ListLineItems: %v, %d items", err, len(got))
		}

		again := &models.Order{ExternalID: "5001", Name: "#1001"}
		if err := st.ReplaceOrder(ctx, again, []models.OrderLineItem{{ProductID: strPtr("p3")}}); err != nil {
			t.Fatal(err)
		}
		if again.ID != o.ID {
			t.Errorf("order id changed: %d -> %d", o.ID, again.ID)
		}
		got, _ = st.ListLineItems(ctx, o.ID)
		if len(got) != 1 || *got[0].ProductID != "p3" {
			t.Errorf("line items not replaced: %+v", got)
		}

		if _, err := st.FindOrderByExternalID(ctx, "5001"); err != nil {
			t.Errorf("FindOrderByExternalID: %v", err)
		}
	})

	t.Run("reps", func(t *testing.T) {
		older := &models.SalesRep{Name: "Older Rep", Active: true}
		newer := &models.SalesRep{Name: "Newer Rep", Active: true}
		for _, r := range []*models.SalesRep{older, newer} {
			if err := st.CreateSalesRep(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		if err := st.CreateSalesRep(ctx, &models.SalesRep{Name: "Older Rep"}); !errors.Is(err, ErrConflict) {
			t.Errorf("duplicate rep name: got %v", err)
		}

		if err := st.CreateSalesRepAlias(ctx, &models.SalesRepAlias{Alias: "o rep", SalesRepID: older.ID}); err != nil {
			t.Fatal(err)
		}
		if err := st.CreateSalesRepAlias(ctx, &models.SalesRepAlias{Alias: "o rep", SalesRepID: newer.ID}); !errors.Is(err, ErrConflict) {
			t.Errorf("duplicate alias: got %v", err)
		}
		if rep, err := st.FindSalesRepByAlias(ctx, "o rep"); err != nil || rep.ID != older.ID {
			t.Errorf("FindSalesRepByAlias: %v %+v", err, rep)
		}
		if rep, err := st.FindSalesRepByName(ctx, "NEWER rep"); err != nil || rep.ID != newer.ID {
			t.Errorf("FindSalesRepByName: %v %+v", err, rep)
		}

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		// Created out of order on purpose: the newer rule is inserted first
		if err := st.CreateTagRule(ctx, &models.SalesRepTagRule{Tag: "brand-x", SalesRepID: newer.ID, CreatedAt: base.Add(time.Hour)}); err != nil {
			t.Fatal(err)
		}
		if err := st.CreateTagRule(ctx, &models.SalesRepTagRule{Tag: "brand-x", SalesRepID: older.ID, CreatedAt: base}); err != nil {
			t.Fatal(err)
		}
		rules, err := st.MatchTagRules(ctx, []string{"brand-x", "unknown"})
		if err != nil || len(rules) != 2 {
			t.Fatalf("MatchTagRules: %v, %d rules", err, len(rules))
		}
		if rules[0].SalesRepID != older.ID || rules[0].SalesRep == nil || rules[0].SalesRep.Name != "Older Rep" {
			t.Errorf("oldest rule should come first with its rep: %+v", rules[0])
		}
	})

	t.Run("sync state", func(t *testing.T) {
		if _, err := st.GetSyncState(ctx, "orders"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := st.SaveSyncState(ctx, &models.SyncState{Resource: "orders", PageInfo: "p1"}); err != nil {
			t.Fatal(err)
		}
		if err := st.SaveSyncState(ctx, &models.SyncState{Resource: "orders", PageInfo: "p2", Imported: 4}); err != nil {
			t.Fatal(err)
		}
		got, err := st.GetSyncState(ctx, "orders")
		if err != nil || got.PageInfo != "p2" || got.Imported != 4 {
			t.Errorf("GetSyncState: %v %+v", err, got)
		}
		all, _ := st.ListSyncStates(ctx)
		if len(all) != 1 {
			t.Errorf("expected one state row, got %d", len(all))
		}
	})

	t.Run("enrichment", func(t *testing.T) {
		o := &models.Order{ExternalID: "6001"}
		items := []models.OrderLineItem{
			{ProductID: strPtr("px"), VariantID: strPtr("vx"), SKU: strPtr("SKU-X")},
			{ProductID: strPtr("px"), VariantID: strPtr("vx")},
			{ProductID: strPtr("py"), Vendor: strPtr("Known"), VariantID: strPtr("vy"), UnitCost: floatPtr(2)},
		}
		if err := st.ReplaceOrder(ctx, o, items); err != nil {
			t.Fatal(err)
		}

		products, err := st.ListProductsMissingVendor(ctx, 100)
		if err != nil {
			t.Fatal(err)
		}
		if !contains(products, "px") || contains(products, "py") {
			t.Errorf("missing vendor products: %v", products)
		}
		n, err := st.SetVendorForProduct(ctx, "px", "Acme")
		if err != nil || n != 2 {
			t.Errorf("SetVendorForProduct: %v, %d rows", err, n)
		}

		variants, err := st.ListVariantsMissingCost(ctx, 100)
		if err != nil {
			t.Fatal(err)
		}
		var vx *CostCandidate
		for i := range variants {
			if variants[i].VariantID == "vx" {
				vx = &variants[i]
			}
			if variants[i].VariantID == "vy" {
				t.Errorf("costed variant listed: %+v", variants[i])
			}
		}
		if vx == nil || vx.SKU != "SKU-X" {
			t.Errorf("vx candidate: %+v", vx)
		}
		n, err = st.SetCostForVariant(ctx, "vx", 7.5)
		if err != nil || n != 2 {
			t.Errorf("SetCostForVariant: %v, %d rows", err, n)
		}
		n, _ = st.SetCostForVariant(ctx, "vx", 9)
		if n != 0 {
			t.Errorf("existing cost overwritten on %d rows", n)
		}
	})

	t.Run("webhook audit", func(t *testing.T) {
		d := &models.WebhookDelivery{DeliveryID: "d-1", Topic: "orders/create", State: "acked", StatusCode: 200, ReceivedAt: time.Now().UTC()}
		if err := st.RecordWebhookDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
		if d.ID == 0 {
			t.Error("audit row ID not assigned")
		}
	})
}

func floatPtr(f float64) *float64 { return &f }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestMemoryStoreContract(t *testing.T) {
	runContract(t, NewMemoryStore())
}

func TestMemoryStoreClock(t *testing.T) {
	st := NewMemoryStore()
	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Clock = func() time.Time { return frozen }

	c := &models.Customer{ExternalID: strPtr("1")}
	if err := st.SaveCustomer(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if !c.CreatedAt.Equal(frozen) || !c.UpdatedAt.Equal(frozen) {
		t.Errorf("timestamps not from Clock: %v %v", c.CreatedAt, c.UpdatedAt)
	}
	if st.CustomerCount() != 1 {
		t.Errorf("CustomerCount = %d", st.CustomerCount())
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	c := &models.Customer{ExternalID: strPtr("1"), Tags: []string{"a"}}
	st.SaveCustomer(ctx, c)

	got, _ := st.FindCustomerByExternalID(ctx, "1")
	got.Tags[0] = "mutated"
	again, _ := st.FindCustomerByExternalID(ctx, "1")
	if again.Tags[0] != "a" {
		t.Error("stored tags aliased by caller")
	}
}

func TestGormStoreContract(t *testing.T) {
	dsn := os.Getenv("SALONSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SALONSYNC_TEST_DATABASE_URL not set")
	}
	db, err := database.Open(dsn, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	err = db.Exec(`TRUNCATE customers, orders, order_line_items, sales_reps,
		sales_rep_aliases, sales_rep_tag_rules, sync_states, webhook_deliveries
		RESTART IDENTITY CASCADE`).Error
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { sqlDB.Close() })
	}

	runContract(t, NewGormStore(db))
}
