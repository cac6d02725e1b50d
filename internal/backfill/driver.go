package backfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/services/shopify"
	"github.com/xelth-com/salonsync/internal/store"
	"github.com/xelth-com/salonsync/internal/sync"
)

// Kind is a backfillable resource
type Kind string

const (
	KindCustomers Kind = "customers"
	KindOrders    Kind = "orders"
)

// ErrUnknownKind is returned for resources the driver cannot page through
var ErrUnknownKind = errors.New("backfill: unknown resource kind")

// ParseKind validates a resource name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCustomers, KindOrders:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Filters narrow the first page of a backfill. They are never sent
// together with a cursor.
type Filters struct {
	CreatedAtMin *time.Time
	CreatedAtMax *time.Time
	UpdatedAtMin *time.Time
	Status       string
}

func (f *Filters) apply(kind Kind, q url.Values) {
	status := ""
	if f != nil {
		if f.CreatedAtMin != nil {
			q.Set("created_at_min", f.CreatedAtMin.UTC().Format(time.RFC3339))
		}
		if f.CreatedAtMax != nil {
			q.Set("created_at_max", f.CreatedAtMax.UTC().Format(time.RFC3339))
		}
		if f.UpdatedAtMin != nil {
			q.Set("updated_at_min", f.UpdatedAtMin.UTC().Format(time.RFC3339))
		}
		status = f.Status
	}
	// The orders endpoint defaults to open orders only
	if kind == KindOrders {
		if status == "" {
			status = "any"
		}
		q.Set("status", status)
	}
}

// RESTClient is the platform surface the driver pages through
type RESTClient interface {
	REST(ctx context.Context, method, path string, query url.Values, body interface{}) (*shopify.Response, error)
}

// RecordUpserter receives each fetched record
type RecordUpserter interface {
	UpsertCustomer(ctx context.Context, p sync.Payload) (sync.CustomerResult, error)
	UpsertOrder(ctx context.Context, p sync.Payload) (sync.OrderResult, error)
}

// StateStore persists resume cursors
type StateStore interface {
	GetSyncState(ctx context.Context, resource string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
}

// Driver pages through a resource and feeds records to the upsert engine
type Driver struct {
	client   RESTClient
	engine   RecordUpserter
	states   StateStore
	maxPages int

	Sleep SleepFunc
	Now   func() time.Time
}

// NewDriver creates a driver. maxPages is the hard per-run page ceiling.
func NewDriver(client RESTClient, engine RecordUpserter, states StateStore, maxPages int) *Driver {
	if maxPages <= 0 {
		maxPages = 100
	}
	return &Driver{
		client:   client,
		engine:   engine,
		states:   states,
		maxPages: maxPages,
		Sleep:    sleepCtx,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// MaxPages is the per-run page ceiling
func (d *Driver) MaxPages() int {
	return d.maxPages
}

// BatchResult summarizes a backfill run. It is returned even when the run
// stopped on an error so callers can see forward progress.
type BatchResult struct {
	Imported     int     `json:"imported"`
	Failed       int     `json:"failed"`
	Pages        int     `json:"pages"`
	NextPageInfo *string `json:"nextPageInfo"`
}

// RunBatch fetches and imports exactly one page. It does not touch the
// persisted sync state.
func (d *Driver) RunBatch(ctx context.Context, kind Kind, cursor SyncCursor, filters *Filters) (BatchResult, error) {
	return d.Run(ctx, kind, RunOptions{Cursor: cursor, Filters: filters, Pages: 1})
}

// RunOptions configures a multi-page run
type RunOptions struct {
	Cursor  SyncCursor
	Filters *Filters
	Pages   int // pages to fetch, at least 1 and capped at the ceiling
	RPM     int // page fetch budget; 0 disables throttling

	// Persist records progress in the resource's SyncState row. Only the
	// owner of the resumable sweep sets it; ad-hoc runs leave the row alone.
	Persist bool
}

// Run follows next-page cursors until the platform reports the end, the
// requested page count is reached, or the ceiling is hit. Hitting a limit
// is not an error: the last cursor is returned for the caller to resume.
func (d *Driver) Run(ctx context.Context, kind Kind, opts RunOptions) (BatchResult, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return BatchResult{}, err
	}
	pages := opts.Pages
	if pages < 1 {
		pages = 1
	}
	if pages > d.maxPages {
		pages = d.maxPages
	}
	limit := ClampLimit(opts.Cursor.Limit)
	pageInfo := opts.Cursor.PageInfo

	runID := uuid.New().String()
	throttle := NewThrottle(opts.RPM, d.Sleep)
	var res BatchResult

	save := func(next *string, err error) {
		if opts.Persist {
			d.saveState(ctx, kind, runID, limit, next, res, err)
		}
	}

	for res.Pages < pages {
		if err := throttle.Wait(ctx); err != nil {
			save(&pageInfo, err)
			return res.withCursor(pageInfo), err
		}

		imported, failed, next, err := d.fetchPage(ctx, kind, limit, pageInfo, opts.Filters)
		if err != nil {
			log.Printf("❌ Backfill %s page %d failed: %v", kind, res.Pages+1, err)
			save(&pageInfo, err)
			return res.withCursor(pageInfo), err
		}
		res.Pages++
		res.Imported += imported
		res.Failed += failed

		if next == "" {
			log.Printf("✅ Backfill %s complete: %d imported, %d failed over %d pages", kind, res.Imported, res.Failed, res.Pages)
			save(nil, nil)
			return res, nil
		}
		pageInfo = next
		save(&pageInfo, nil)
	}

	log.Printf("🔄 Backfill %s paused after %d pages: %d imported, %d failed", kind, res.Pages, res.Imported, res.Failed)
	return res.withCursor(pageInfo), nil
}

func (r BatchResult) withCursor(pageInfo string) BatchResult {
	if pageInfo != "" {
		p := pageInfo
		r.NextPageInfo = &p
	}
	return r
}

// fetchPage requests one page and upserts each record in its own failure
// boundary
func (d *Driver) fetchPage(ctx context.Context, kind Kind, limit int, pageInfo string, filters *Filters) (int, int, string, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if pageInfo != "" {
		q.Set("page_info", pageInfo)
	} else {
		filters.apply(kind, q)
	}

	resp, err := d.client.REST(ctx, http.MethodGet, string(kind)+".json", q, nil)
	if err != nil {
		return 0, 0, "", err
	}
	if !resp.OK {
		return 0, 0, "", fmt.Errorf("%w: %s.json returned %d", shopify.ErrUnexpectedStatus, kind, resp.Status)
	}

	page, err := sync.DecodePayload(resp.Body)
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode %s page: %w", kind, err)
	}
	records, _ := page[string(kind)].([]interface{})

	imported, failed := 0, 0
	for i, rec := range records {
		obj, ok := rec.(map[string]interface{})
		if !ok {
			failed++
			continue
		}
		if err := d.upsert(ctx, kind, sync.Payload(obj)); err != nil {
			log.Printf("⚠️ Backfill %s record %d skipped: %v", kind, i, err)
			failed++
			continue
		}
		imported++
	}
	return imported, failed, NextPageInfo(resp.Header), nil
}

func (d *Driver) upsert(ctx context.Context, kind Kind, p sync.Payload) error {
	switch kind {
	case KindCustomers:
		_, err := d.engine.UpsertCustomer(ctx, p)
		return err
	case KindOrders:
		_, err := d.engine.UpsertOrder(ctx, p)
		return err
	}
	return ErrUnknownKind
}

// saveState persists the resume point. next == nil marks the end of
// pagination and clears the cursor.
func (d *Driver) saveState(ctx context.Context, kind Kind, runID string, limit int, next *string, res BatchResult, runErr error) {
	if d.states == nil {
		return
	}
	// A cancelled run still records where it stopped
	ctx = context.WithoutCancel(ctx)

	st, err := d.states.GetSyncState(ctx, string(kind))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("⚠️ Backfill %s: reading sync state failed: %v", kind, err)
		}
		st = &models.SyncState{Resource: string(kind)}
	}

	now := d.Now()
	st.LastRunID = runID
	st.LastRunAt = &now
	st.PageSize = limit
	st.Imported = int64(res.Imported)
	st.Failed = int64(res.Failed)
	st.LastError = ""

	switch {
	case runErr != nil:
		st.LastStatus = models.SyncStatusError
		st.LastError = runErr.Error()
		if next != nil {
			st.PageInfo = *next
		}
	case next == nil:
		st.LastStatus = models.SyncStatusCompleted
		st.PageInfo = ""
		st.LastCompletedAt = &now
	default:
		st.LastStatus = models.SyncStatusPartial
		st.PageInfo = *next
	}

	if err := d.states.SaveSyncState(ctx, st); err != nil {
		log.Printf("⚠️ Backfill %s: saving sync state failed: %v", kind, err)
	}
}
