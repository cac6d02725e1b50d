package backfill

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xelth-com/salonsync/internal/config"
	"github.com/xelth-com/salonsync/internal/models"
)

func TestSchedulerResumesFromPersistedCursor(t *testing.T) {
	shop := &fakeShop{t: t, total: 5}
	d, st, done := newTestDriver(t, shop)
	defer done()

	cfg := config.SyncConfig{
		PageSize: 2,
		Resources: map[string]config.ResourceSyncConfig{
			"customers": {Enabled: true, PagesPerRun: 1},
			"orders":    {Enabled: false},
		},
	}
	s := NewScheduler(d, st, cfg)
	ctx := context.Background()

	wantCursors := []string{"off2", "off4", ""}
	for i, want := range wantCursors {
		s.RunOnce(ctx)
		state, err := st.GetSyncState(ctx, "customers")
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if state.PageInfo != want {
			t.Errorf("run %d: cursor = %q, want %q", i, state.PageInfo, want)
		}
	}

	if st.CustomerCount() != 5 {
		t.Errorf("expected 5 customers, got %d", st.CustomerCount())
	}
	for _, q := range shop.queries {
		if strings.Contains(q, "status=") {
			t.Errorf("orders are disabled, customers carry no status: %s", q)
		}
	}
	state, _ := st.GetSyncState(ctx, "customers")
	if state.LastStatus != models.SyncStatusCompleted {
		t.Errorf("status = %s", state.LastStatus)
	}

	// Next sweep starts over, narrowed to records updated since completion
	s.RunOnce(ctx)
	last := shop.queries[len(shop.queries)-1]
	if !strings.Contains(last, "updated_at_min=") || strings.Contains(last, "page_info") {
		t.Errorf("fresh sweep query = %s", last)
	}
}

func TestSchedulerStartStopWhenDisabled(t *testing.T) {
	s := NewScheduler(nil, nil, config.SyncConfig{Enabled: false})
	s.Start()
	s.Stop()
}

func TestManualRunLeavesSchedulerCursorAlone(t *testing.T) {
	shop := &fakeShop{t: t, total: 5}
	d, st, done := newTestDriver(t, shop)
	defer done()

	cfg := config.SyncConfig{
		PageSize: 2,
		Resources: map[string]config.ResourceSyncConfig{
			"customers": {Enabled: true, PagesPerRun: 1},
		},
	}
	s := NewScheduler(d, st, cfg)
	ctx := context.Background()

	s.RunOnce(ctx)
	before, err := st.GetSyncState(ctx, "customers")
	if err != nil || before.PageInfo != "off2" || before.LastStatus != models.SyncStatusPartial {
		t.Fatalf("scheduled state = %+v (%v)", before, err)
	}

	// An operator imports everything created since a date
	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := d.RunBatch(ctx, KindCustomers, SyncCursor{Limit: 250}, &Filters{CreatedAtMin: &since})
	if err != nil || res.NextPageInfo != nil {
		t.Fatalf("manual batch = %+v (%v)", res, err)
	}

	after, err := st.GetSyncState(ctx, "customers")
	if err != nil {
		t.Fatal(err)
	}
	if after.PageInfo != "off2" || after.LastStatus != models.SyncStatusPartial || after.LastCompletedAt != nil || after.LastRunID != before.LastRunID {
		t.Errorf("manual run changed scheduler state: %+v", after)
	}

	s.RunOnce(ctx)
	last := shop.queries[len(shop.queries)-1]
	if !strings.Contains(last, "page_info=off2") || strings.Contains(last, "updated_at_min") {
		t.Errorf("scheduler did not resume its sweep: %s", last)
	}
}
