package main

import (
	"context"
	"fmt"
	"os"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/logger"
	"catalog-import-service/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	storeDriver string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:          "catalog-import",
	Short:        "Import and export the product catalog",
	Long:         "Operator tool that runs catalog batches synchronously against the configured document store",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "Document store driver (mongo, postgres, memory); defaults to STORE_DRIVER")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every row")

	rootCmd.AddCommand(runCmd, exportCmd, templateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session bundles what every subcommand needs.
type session struct {
	cfg    *config.Config
	logger *logrus.Logger
	store  store.DocumentStore
	close  func()
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if storeDriver != "" {
		cfg.StoreDriver = storeDriver
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{Environment: cfg.Environment, Level: level, Format: "text"})

	var db *gorm.DB
	if cfg.StoreDriver == "postgres" {
		if db, err = config.InitDB(cfg); err != nil {
			return nil, err
		}
	}

	docStore, closeFn, err := config.InitStore(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}
	return &session{cfg: cfg, logger: log, store: docStore, close: closeFn}, nil
}
