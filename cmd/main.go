package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/config"
	"catalog-import-service/internal/events"
	"catalog-import-service/internal/handlers"
	"catalog-import-service/internal/logger"
	"catalog-import-service/internal/metrics"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/notify"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/services"
	"catalog-import-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Catalog Import API
// @version 1.0.0
// @description Catalog CSV/XLSX import, export and storefront form e-mails

// @host localhost:8087
// @BasePath /api/v1

// @securityDefinitions.apikey AdminToken
// @in header
// @name X-Admin-Token

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logr := logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	})

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logr.WithError(err).Fatal("Failed to connect to database")
	}

	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Initialize document store
	docStore, closeStore, err := config.InitStore(rootCtx, cfg, db)
	if err != nil {
		logr.WithError(err).Fatal("Failed to initialize document store")
	}
	defer closeStore()
	logr.WithField("driver", cfg.StoreDriver).Info("✓ Document store initialized")

	// Initialize Redis client (optional)
	redisClient := connectRedis(cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize repository
	jobsRepo := repository.NewImportJobRepository(db, redisClient)

	// Initialize notifications
	var counter notify.Counter = notify.NewMemoryCounter()
	if redisClient != nil {
		counter = notify.NewRedisCounter(redisClient)
	}
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	notifier := notify.NewService(mailer, counter, notify.Config{
		ContactTo: notify.SplitAddresses(cfg.MailTo),
		ReportsTo: notify.SplitAddresses(cfg.ImportReportsTo),
	}, logr)

	// Initialize import pipeline
	importer := catalog.NewImporter(docStore, logr).WithObserver(metrics.RecordRow)
	importService := services.NewImportService(jobsRepo, importer, services.ImportServiceConfig{
		TmpDir: cfg.ImportTmpDir,
		Defaults: models.ImportOptions{
			Delimiter: cfg.ImportDelimiter,
			Key:       models.UniqueKey(cfg.ImportKey),
			Encoding:  cfg.ImportEncoding,
		},
		LockTTL:      cfg.LockTTL(),
		DefaultLimit: cfg.DefaultPageSize,
		MaxLimit:     cfg.MaxPageSize,
	}, logr).WithReporter(notifier)
	if redisClient != nil {
		importService.WithLocker(services.NewRedisLocker(redisClient))
	}

	// Initialize event publisher only if NATS_URL is set
	if cfg.NatsURL != "" {
		publisher, err := events.NewPublisher(cfg.NatsURL, logr)
		if err != nil {
			logr.WithError(err).Warn("Failed to initialize events publisher (continuing without event publishing)")
		} else {
			defer publisher.Close()
			importService.WithPublisher(publisher)
			logr.Info("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		logr.Info("NATS_URL not set, skipping event publishing initialization")
	}

	importService.Start(rootCtx)

	// Initialize handlers
	importHandler := handlers.NewImportHandler(importService, catalog.NewExporter(docStore, logr), cfg.ImportDelimiter, cfg.ImportMaxUploadMB, logr)
	contactHandler := handlers.NewContactHandler(notifier)

	readiness := []handlers.Dependency{{
		Name: "database",
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if pinger, ok := docStore.(store.Pinger); ok {
		readiness = append(readiness, handlers.Dependency{Name: "store", Ping: pinger.Ping})
	}

	// Initialize Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(metrics.Middleware())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(readiness...))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	{
		// Public storefront forms
		api.POST("/contact-form", contactHandler.SubmitContactForm)
		api.POST("/vin-request", contactHandler.SubmitVinRequest)

		uploadLimiter := middleware.NewRateLimiter(cfg.UploadRateLimit, cfg.UploadRateBurst)

		catalogGroup := api.Group("/catalog")
		catalogGroup.Use(middleware.AdminTokenAuth(cfg.AdminAPIToken, cfg.IsProduction()))
		{
			catalogGroup.POST("/import", uploadLimiter.Middleware(), importHandler.ImportCatalog)
			catalogGroup.GET("/import/jobs", importHandler.ListImportJobs)
			catalogGroup.GET("/import/jobs/:id", importHandler.GetImportJob)
			catalogGroup.GET("/import/template", importHandler.GetImportTemplate)
			catalogGroup.GET("/export", importHandler.ExportCatalog)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logr.WithField("port", cfg.Port).Info("Catalog import service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	<-quit
	logr.Info("Shutting down catalog-import-service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.WithError(err).Error("Server forced to shutdown")
	}

	// cancels the running batch; jobs still queued are marked failed
	stopWorkers()
	importService.Stop()

	logr.Info("Catalog import service stopped")
}

func connectRedis(cfg *config.Config, logr *logrus.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logr.Info("REDIS_URL not set, using in-process lock and counters")
		return nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logr.WithError(err).Warn("Failed to parse Redis URL (continuing without Redis)")
		return nil
	}
	if cfg.RedisPassword != "" {
		redisOpts.Password = cfg.RedisPassword
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logr.WithError(err).Warn("Failed to connect to Redis (continuing without Redis)")
		client.Close()
		return nil
	}
	logr.Info("✓ Redis connected successfully")
	return client
}
