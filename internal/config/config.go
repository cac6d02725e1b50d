package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Shopify   ShopifyConfig
	Odoo      OdooConfig
	Server    ServerConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL       string // optional DSN, takes precedence over the discrete fields
	Host      string
	Port      string
	Username  string
	Password  string
	Database  string
	LogSilent bool
}

// ShopifyConfig holds the commerce platform credentials and webhook settings
type ShopifyConfig struct {
	ShopDomain         string
	AccessToken        string
	APIVersion         string
	BaseURL            string // override for tests and proxies
	TimeoutSeconds     int
	WebhookSecret      string
	WebhooksEnabled    bool
	AllowedShopDomains []string
}

// OdooConfig holds the warehouse ERP connection used for cost enrichment
type OdooConfig struct {
	URL            string
	Database       string
	Username       string
	Password       string
	TimeoutSeconds int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3220"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			URL:       os.Getenv("DATABASE_URL"),
			Host:      getEnv("PG_HOST", "localhost"),
			Port:      getEnv("PG_PORT", "5432"),
			Username:  getEnv("PG_USERNAME", "postgres"),
			Password:  os.Getenv("PG_PASSWORD"),
			Database:  getEnv("PG_DATABASE", "salonsync"),
			LogSilent: getBoolEnv("DB_LOG_SILENT", true),
		},
		Shopify: ShopifyConfig{
			ShopDomain:         strings.ToLower(os.Getenv("SHOPIFY_SHOP_DOMAIN")),
			AccessToken:        os.Getenv("SHOPIFY_ACCESS_TOKEN"),
			APIVersion:         getEnv("SHOPIFY_API_VERSION", "2024-10"),
			BaseURL:            os.Getenv("SHOPIFY_BASE_URL"),
			TimeoutSeconds:     getIntEnv("SHOPIFY_TIMEOUT_SECONDS", 30),
			WebhookSecret:      os.Getenv("SHOPIFY_WEBHOOK_SECRET"),
			WebhooksEnabled:    getBoolEnv("SHOPIFY_WEBHOOKS_ENABLED", true),
			AllowedShopDomains: splitList(os.Getenv("SHOPIFY_ALLOWED_SHOP_DOMAINS")),
		},
		Odoo: OdooConfig{
			URL:            os.Getenv("ODOO_URL"),
			Database:       os.Getenv("ODOO_DB"),
			Username:       os.Getenv("ODOO_USER"),
			Password:       os.Getenv("ODOO_PASSWORD"),
			TimeoutSeconds: getIntEnv("ODOO_TIMEOUT_SECONDS", 30),
		},
		Server: ServerConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			MaxBodyBytes:   int64(getIntEnv("MAX_BODY_BYTES", 5<<20)),
		},
	}

	if cfg.Shopify.WebhooksEnabled && cfg.Shopify.WebhookSecret == "" {
		return nil, fmt.Errorf("SHOPIFY_WEBHOOK_SECRET is required when webhooks are enabled")
	}

	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blanks
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
