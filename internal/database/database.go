package database

import (
	"fmt"
	"log"
	"strconv"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/xelth-com/salonsync/internal/config"
	"github.com/xelth-com/salonsync/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5434
)

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Connect establishes a connection to PostgreSQL. With no DATABASE_URL, a
// localhost host and an empty password an embedded instance is started.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres

	dsn := cfg.URL
	if dsn == "" {
		password := cfg.Password
		if cfg.Host == "localhost" && cfg.Password == "" {
			log.Println("📦 Mode: [Embedded PostgreSQL] - Initializing internal database...")

			embedded = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
				DataPath(embeddedDataPath).
				Port(uint32(embeddedPort)).
				Database(cfg.Database).
				Username(cfg.Username).
				Password("postgres"))

			if err := embedded.Start(); err != nil {
				return nil, fmt.Errorf("failed to start embedded database: %w", err)
			}

			cfg.Port = strconv.Itoa(embeddedPort)
			password = "postgres"
			log.Printf("✅ Embedded PostgreSQL process started on port %d", embeddedPort)
		} else {
			log.Printf("🌐 Mode: [External PostgreSQL] - Connecting to %s:%s\n", cfg.Host, cfg.Port)
		}

		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.Username, password, cfg.Database,
		)
	} else {
		log.Println("🌐 Mode: [External PostgreSQL] - Connecting via DATABASE_URL")
	}

	db, err := Open(dsn, cfg.LogSilent)
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, err
	}

	log.Println("✅ Database connection established")

	return &DB{DB: db, embedded: embedded}, nil
}

// Open opens a gorm handle on an explicit DSN
func Open(dsn string, silent bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if silent {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// Migrate synchronizes the schema for every model this service owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SalesRep{},
		&models.SalesRepAlias{},
		&models.SalesRepTagRule{},
		&models.Customer{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.SyncState{},
		&models.WebhookDelivery{},
	)
}

// Close ensures the database connection and embedded process are shut down
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}

	if db.embedded != nil {
		log.Println("🛑 Stopping Embedded PostgreSQL process...")
		_ = db.embedded.Stop()
	}
	return err
}
