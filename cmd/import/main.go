package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/moodi-org/pass-backend/internal/config"
	"github.com/moodi-org/pass-backend/internal/importer"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/repository"
	"github.com/moodi-org/pass-backend/internal/utils"
	"go.uber.org/zap"
)

func main() {
	var (
		csvPath string
		region  string
		timeout time.Duration
	)
	flag.StringVar(&csvPath, "file", "accommodations.csv", "participant CSV to import")
	flag.StringVar(&region, "region", utils.DefaultPhoneRegion, "default region for phone numbers without a country code")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall import timeout")
	flag.Parse()

	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = logging.Logger.Sync() }()

	if err := run(csvPath, region, timeout); err != nil {
		logging.Logger.Error("csv import failed", zap.Error(err))
		_ = logging.Logger.Sync()
		os.Exit(1)
	}
}

func run(csvPath, region string, timeout time.Duration) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	file, err := os.Open(csvPath)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Logger.Warn("csv file not found, nothing to import", zap.String("file", csvPath))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := repository.Migrate(cfg.DBDriver, cfg.MigrationURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := config.OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	im := importer.New(repository.NewParticipantRepository(db), region, logging.Logger.Named("import"))
	result, err := im.Import(ctx, file)
	if err != nil {
		return err
	}

	if result.Imported == 0 {
		logging.Logger.Warn("no valid rows found",
			zap.String("file", csvPath),
			zap.Int("skipped", len(result.Skipped)))
		return nil
	}

	logging.Logger.Info("import complete",
		zap.String("file", csvPath),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", len(result.Skipped)))
	return nil
}
