package main

import (
	"context"
	"errors"
	"os"
	"time"

	"forecast/internal/amqp"
	"forecast/internal/cli"
	"forecast/internal/log"
	"forecast/internal/sheets"
	gsheet "forecast/internal/sheets/google"
	memsheet "forecast/internal/sheets/memory"
	"forecast/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting forecast-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	backendResult := cli.InitBackend(context.Background(), logger, cfg)

	// Initialize the snapshot writer. Without a spreadsheet ID the
	// worker records exports in memory, which is useful for local runs.
	var writer sheets.SnapshotWriter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = sheetsClient
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memsheet.New()
		logger.Warn("Google Sheets disabled - exports recorded in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close failed", log.FieldError, err)
		}
		if backendResult.Cleanup != nil {
			if err := backendResult.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	})

	exportWorker := worker.NewExportWorker(backendResult.Store, writer, cfg.ExportBatchSize)

	// On startup, drain any approved snapshots whose events were missed
	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", log.FieldError, err)
		// Don't exit - continue with normal operation
	}

	go func() {
		if err := exportWorker.Run(ctx, amqpClient, cfg.ExportInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Export worker stopped", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
