package config

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	// Database (import job history, postgres document store)
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:""`
	DBName     string `env:"DB_NAME" envDefault:"catalog_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Document store
	StoreDriver       string `env:"STORE_DRIVER" envDefault:"mongo"` // mongo | postgres | memory
	MongoURI          string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string `env:"MONGODB_DATABASE" envDefault:"catalog"`
	StoreTransactions bool   `env:"STORE_TRANSACTIONS" envDefault:"false"`

	// Redis
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`

	// NATS
	NatsURL string `env:"NATS_URL" envDefault:""`

	// Server
	Port          string `env:"PORT" envDefault:"8087"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	AdminAPIToken string `env:"ADMIN_API_TOKEN" envDefault:""`
	CORSOrigins   string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL" envDefault:""`
	LogFormat     string `env:"LOG_FORMAT" envDefault:""`
	LogFile       string `env:"LOG_FILE" envDefault:""`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`

	// Import
	ImportDelimiter      string  `env:"IMPORT_DELIMITER" envDefault:";"`
	ImportKey            string  `env:"IMPORT_KEY" envDefault:"article"`
	ImportEncoding       string  `env:"IMPORT_ENCODING" envDefault:"utf-8"`
	ImportTmpDir         string  `env:"IMPORT_TMP_DIR" envDefault:""`
	ImportMaxUploadMB    int64   `env:"IMPORT_MAX_UPLOAD_MB" envDefault:"50"`
	ImportLockTTLMinutes int     `env:"IMPORT_LOCK_TTL_MINUTES" envDefault:"60"`
	UploadRateLimit      float64 `env:"UPLOAD_RATE_LIMIT" envDefault:"0.2"`
	UploadRateBurst      int     `env:"UPLOAD_RATE_BURST" envDefault:"2"`

	// Pagination
	DefaultPageSize int `env:"DEFAULT_PAGE_SIZE" envDefault:"20"`
	MaxPageSize     int `env:"MAX_PAGE_SIZE" envDefault:"100"`

	// Mail
	SMTPHost        string `env:"SMTP_HOST" envDefault:""`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser        string `env:"SMTP_USER" envDefault:""`
	SMTPPassword    string `env:"SMTP_PASSWORD" envDefault:""`
	MailFrom        string `env:"MAIL_FROM" envDefault:"noreply@localhost"`
	MailTo          string `env:"MAIL_TO" envDefault:""`
	ImportReportsTo string `env:"IMPORT_REPORTS_TO" envDefault:""`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.ImportLockTTLMinutes) * time.Minute
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.ImportJob{},
		&store.DocumentRecord{},
	); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			log.Printf("Note: Migration constraint warning (safe to ignore): %v", err)
		} else {
			return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
		}
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

// InitStore opens the document store selected by STORE_DRIVER. The postgres
// driver shares the gorm connection; db may be nil for the other drivers.
func InitStore(ctx context.Context, cfg *Config, db *gorm.DB) (store.DocumentStore, func(), error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return store.NewMongoStore(client, cfg.MongoDatabase, cfg.StoreTransactions), closeFn, nil
	case "postgres":
		if db == nil {
			return nil, nil, fmt.Errorf("postgres document store requires a database connection")
		}
		return store.NewPostgresStore(db), func() {}, nil
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
