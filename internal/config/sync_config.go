package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// SyncConfig holds backfill scheduling and throttling configuration
type SyncConfig struct {
	// ============ SCHEDULING ============
	Enabled       bool `yaml:"enabled"`
	IntervalMin   int  `yaml:"interval_minutes"`
	SyncOnStartup bool `yaml:"sync_on_startup"`

	// ============ LIMITS ============
	MaxPages  int `yaml:"max_pages"` // hard page ceiling per run
	PageSize  int `yaml:"page_size"`
	RPM       int `yaml:"rpm"`        // page fetch budget
	EnrichRPM int `yaml:"enrich_rpm"` // vendor/cost lookup budget

	// ============ WEBHOOKS ============
	DedupeTTLSeconds int `yaml:"dedupe_ttl_seconds"`

	// ============ RESOURCES ============
	Resources map[string]ResourceSyncConfig `yaml:"resources"`
}

// ResourceSyncConfig holds per-resource backfill settings
type ResourceSyncConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PagesPerRun int    `yaml:"pages_per_run"`
	Status      string `yaml:"status"` // first-page status filter (orders)
}

// LoadSyncConfig loads sync configuration from a YAML file or environment
func LoadSyncConfig() *SyncConfig {
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		cfg, err := loadSyncConfigFromFile(configPath)
		if err == nil {
			return cfg
		}
		log.Printf("⚠️ Sync config %s unreadable, using defaults: %v", configPath, err)
	}

	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile reads YAML over the defaults so omitted keys keep sane values
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := getDefaultSyncConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled:       getBoolEnv("SYNC_ENABLED", false),
		IntervalMin:   getIntEnv("SYNC_INTERVAL_MINUTES", 30),
		SyncOnStartup: getBoolEnv("SYNC_ON_STARTUP", false),

		MaxPages:  getIntEnv("SYNC_MAX_PAGES", 100),
		PageSize:  getIntEnv("SYNC_PAGE_SIZE", 50),
		RPM:       getIntEnv("SYNC_RPM", 60),
		EnrichRPM: getIntEnv("SYNC_ENRICH_RPM", 30),

		DedupeTTLSeconds: getIntEnv("WEBHOOK_DEDUPE_TTL", 300),

		Resources: map[string]ResourceSyncConfig{
			"customers": {Enabled: true, PagesPerRun: 10},
			"orders":    {Enabled: true, PagesPerRun: 10, Status: "any"},
		},
	}
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
