package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/salonsync/internal/backfill"
	"github.com/xelth-com/salonsync/internal/config"
	"github.com/xelth-com/salonsync/internal/database"
	"github.com/xelth-com/salonsync/internal/services/odoo"
	"github.com/xelth-com/salonsync/internal/services/shopify"
	"github.com/xelth-com/salonsync/internal/store"
	"github.com/xelth-com/salonsync/internal/sync"
)

// jobArgs is a validated command line
type jobArgs struct {
	Job      string
	Kind     backfill.Kind // empty for enrichment jobs
	Limit    int
	Pages    int
	RPM      int
	PageInfo string
	Resume   bool
	Filters  backfill.Filters
}

func (a jobArgs) enrichment() bool {
	return a.Job == "vendors" || a.Job == "costs"
}

// parseArgs validates flags and the job name without touching the network
// or the database
func parseArgs(args []string) (jobArgs, error) {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	var (
		limit        = fs.Int("limit", backfill.DefaultLimit, "records per page")
		pages        = fs.Int("pages", 1, "pages to fetch")
		rpm          = fs.Int("rpm", 0, "page fetch budget (0 = configured default)")
		pageInfo     = fs.String("page-info", "", "resume from this cursor")
		resume       = fs.Bool("resume", false, "continue the scheduled sweep from its persisted cursor")
		createdAtMin = fs.String("created-at-min", "", "RFC3339 lower bound on creation time")
		updatedAtMin = fs.String("updated-at-min", "", "RFC3339 lower bound on update time")
		status       = fs.String("status", "", "order status filter")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: backfill [flags] customers|orders|vendors|costs\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return jobArgs{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return jobArgs{}, errors.New("exactly one job name is required")
	}

	a := jobArgs{
		Job:      fs.Arg(0),
		Limit:    backfill.ClampLimit(*limit),
		Pages:    *pages,
		RPM:      *rpm,
		PageInfo: *pageInfo,
		Resume:   *resume,
		Filters:  backfill.Filters{Status: *status},
	}
	if a.enrichment() {
		return a, nil
	}

	kind, err := backfill.ParseKind(a.Job)
	if err != nil {
		fs.Usage()
		return jobArgs{}, err
	}
	a.Kind = kind
	if a.Pages < 1 {
		return jobArgs{}, fmt.Errorf("-pages must be at least 1, got %d", a.Pages)
	}
	if a.Filters.CreatedAtMin, err = parseFlagTime("created-at-min", *createdAtMin); err != nil {
		return jobArgs{}, err
	}
	if a.Filters.UpdatedAtMin, err = parseFlagTime("updated-at-min", *updatedAtMin); err != nil {
		return jobArgs{}, err
	}
	if a.Resume && (a.PageInfo != "" || a.Filters.CreatedAtMin != nil || a.Filters.UpdatedAtMin != nil) {
		return jobArgs{}, errors.New("-resume cannot be combined with -page-info or time filters")
	}
	return a, nil
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Printf("❌ %v", err)
		}
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	syncCfg := config.LoadSyncConfig()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db.DB); err != nil {
		db.Close()
		log.Fatalf("❌ Migration failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, err := run(ctx, args, cfg, syncCfg, store.NewGormStore(db.DB))
	stop()

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if cerr := db.Close(); cerr != nil {
		log.Printf("⚠️ Database close error: %v", cerr)
	}
	if err != nil {
		log.Printf("❌ %s backfill failed: %v", args.Job, err)
		os.Exit(1)
	}
	log.Println("✅ Done")
}

func run(ctx context.Context, args jobArgs, cfg *config.Config, syncCfg *config.SyncConfig, st *store.GormStore) (interface{}, error) {
	shop := shopify.NewClient(cfg.Shopify)

	if args.enrichment() {
		var fallback backfill.CostFallback
		if oc := odoo.NewClient(cfg.Odoo); oc.Enabled() {
			fallback = oc
		}
		enricher := backfill.NewEnricher(shop, st, fallback)
		opts := backfill.EnrichOptions{RPM: backfill.ClampEnrichRPM(args.RPM, syncCfg.EnrichRPM)}
		if args.Job == "vendors" {
			return enricher.BackfillVendors(ctx, opts)
		}
		return enricher.BackfillCosts(ctx, opts)
	}

	engine := sync.NewEngine(st, sync.NewRepResolver(st))
	driver := backfill.NewDriver(shop, engine, st, syncCfg.MaxPages)

	opts := backfill.RunOptions{
		Cursor:  backfill.SyncCursor{PageInfo: args.PageInfo, Limit: args.Limit},
		Pages:   args.Pages,
		RPM:     backfill.ClampRPM(args.RPM, syncCfg.RPM),
		Persist: args.Resume,
	}
	filters := args.Filters
	if args.Resume {
		state, err := st.GetSyncState(ctx, string(args.Kind))
		switch {
		case err == nil && state.PageInfo != "":
			opts.Cursor.PageInfo = state.PageInfo
		case err == nil:
			filters.UpdatedAtMin = state.LastCompletedAt
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	if opts.Cursor.PageInfo == "" {
		opts.Filters = &filters
	}

	log.Printf("🔄 Backfilling %s (limit %d, pages %d)...", args.Kind, opts.Cursor.Limit, opts.Pages)
	return driver.Run(ctx, args.Kind, opts)
}

func parseFlagTime(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return &t, nil
}
