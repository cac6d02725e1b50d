package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/xelth-com/salonsync/internal/config"
	"github.com/xelth-com/salonsync/internal/database"
	"github.com/xelth-com/salonsync/internal/store"
	"github.com/xelth-com/salonsync/internal/sync"
)

func main() {
	fmt.Println("🌱 Sales Rep Roster Seeder")

	path := "reps.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	seed, err := sync.LoadRepSeed(path)
	if err != nil {
		log.Fatalf("❌ Failed to read roster: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db.DB); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	stats, err := sync.SeedReps(context.Background(), store.NewGormStore(db.DB), seed)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	fmt.Printf("✅ Created %d reps, %d aliases, %d tag rules from %s\n",
		stats.Reps, stats.Aliases, stats.TagRules, path)
}
