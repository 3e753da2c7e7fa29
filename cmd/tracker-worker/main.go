// Command tracker-worker ingests transaction texts from the broker and
// exports created expenses to Google Sheets when configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"moneytrack/internal/cli"
	"moneytrack/internal/config"
	"moneytrack/internal/log"
	"moneytrack/internal/sheets"
	gsheet "moneytrack/internal/sheets/google"
	"moneytrack/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := cli.LoadEnvFile(); err != nil {
		return err
	}
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting tracker-worker", log.FieldOperation, log.OpStartup)

	ctx, stop := cli.SignalContext()
	defer stop()

	res, err := cli.InitBackend(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldOperation, log.OpStartup)
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	}()

	svc := cli.NewServices(cfg, res, logger)

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets export", log.FieldError, err)
		return err
	}

	w := worker.New(svc.Expenses, res.Store, exporter, logger)
	if err := w.Run(ctx, res.Broker); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
	return nil
}

// newExporter returns nil, not a typed nil, when the export is disabled.
func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Exporter, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil, nil
	}
	creds, err := cfg.GoogleCredentials()
	if err != nil {
		return nil, err
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: creds,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets export enabled", "sheet", cfg.GoogleSheetName)
	return client, nil
}
