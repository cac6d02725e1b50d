package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/salonsync/internal/backfill"
	"github.com/xelth-com/salonsync/internal/config"
	"github.com/xelth-com/salonsync/internal/database"
	"github.com/xelth-com/salonsync/internal/handlers"
	"github.com/xelth-com/salonsync/internal/services/odoo"
	"github.com/xelth-com/salonsync/internal/services/shopify"
	"github.com/xelth-com/salonsync/internal/store"
	"github.com/xelth-com/salonsync/internal/sync"
	"github.com/xelth-com/salonsync/internal/webhook"
	"github.com/xelth-com/salonsync/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	syncCfg := config.LoadSyncConfig()

	// 2. Initialize database (embedded vs external detected automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Auto-migrate schema
	log.Println("🚀 Synchronizing database schema...")
	if err := database.Migrate(db.DB); err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	st := store.NewGormStore(db.DB)

	// 4. Sync engine with the live feed as its event sink
	hub := websocket.NewHub()
	go hub.Run()

	engine := sync.NewEngine(st, sync.NewRepResolver(st))
	engine.SetPublisher(hub)

	// 5. Platform clients
	shop := shopify.NewClient(cfg.Shopify)

	var fallback backfill.CostFallback
	odooClient := odoo.NewClient(cfg.Odoo)
	if odooClient.Enabled() {
		fallback = odooClient
		log.Println("✅ Odoo cost fallback enabled")
	}

	driver := backfill.NewDriver(shop, engine, st, syncCfg.MaxPages)
	enricher := backfill.NewEnricher(shop, st, fallback)
	scheduler := backfill.NewScheduler(driver, st, *syncCfg)
	scheduler.Start()

	// 6. HTTP surface
	deps := handlers.Deps{
		Backfill:         driver,
		Enrich:           enricher,
		States:           st,
		Reps:             sync.NewRepResolver(st),
		Feed:             websocket.Handler(hub, nil),
		JWTSecret:        cfg.JWTSecret,
		DefaultRPM:       syncCfg.RPM,
		DefaultEnrichRPM: syncCfg.EnrichRPM,
		DefaultPageSize:  syncCfg.PageSize,
	}
	if cfg.Shopify.WebhooksEnabled {
		deps.Webhooks = webhook.NewPipeline(engine, webhook.Options{
			Secret:             cfg.Shopify.WebhookSecret,
			AllowedShopDomains: cfg.Shopify.AllowedShopDomains,
			MaxBodyBytes:       cfg.Server.MaxBodyBytes,
			Dedupe:             webhook.NewDeduplicator(time.Duration(syncCfg.DedupeTTLSeconds) * time.Second),
			Audit:              st,
		})
		log.Println("📡 Shopify webhooks enabled")
	}
	router := handlers.NewRouter(deps)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.WithCORS(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server (%s) starting on port %s\n", cfg.NodeEnv, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	scheduler.Stop()

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
