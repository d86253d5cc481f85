// Package worker exports approved snapshots to the configured sheet. It is
// driven by AMQP events and backed by a reconcile pass over the export
// ledger, so snapshots still reach the sheet when messages are lost.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"forecast/internal/amqp"
	"forecast/internal/sheets"
	"forecast/internal/store"
)

type ExportWorker struct {
	store     store.Backend
	writer    sheets.SnapshotWriter
	batchSize int
}

func NewExportWorker(backend store.Backend, writer sheets.SnapshotWriter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ExportWorker{
		store:     backend,
		writer:    writer,
		batchSize: batchSize,
	}
}

// Run consumes export events and runs the periodic reconcile pass until ctx
// is done or either loop fails.
func (w *ExportWorker) Run(ctx context.Context, client *amqp.Client, reconcileInterval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.ConsumeExportEvents(ctx, func(event *amqp.ExportEvent) error {
			return w.HandleExportEvent(ctx, event)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPendingExports(ctx); err != nil {
					slog.ErrorContext(ctx, "Reconcile pass failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleExportEvent processes a single event from the export queue.
func (w *ExportWorker) HandleExportEvent(ctx context.Context, event *amqp.ExportEvent) error {
	switch event.Kind {
	case amqp.EventSnapshotApproved:
		slog.InfoContext(ctx, "Processing approval event",
			"snapshot_id", event.SnapshotID,
			"batch_id", event.BatchID)
		return w.exportSnapshot(ctx, event.SnapshotID)

	case amqp.EventBatchCaptured:
		// Captured snapshots are not exported until approved. The event
		// still triggers a reconcile so approvals that raced ahead of the
		// worker get picked up promptly.
		slog.InfoContext(ctx, "Batch captured",
			"batch_id", event.BatchID,
			"snapshot_count", len(event.SnapshotIDs))
		return w.ProcessPendingExports(ctx)

	default:
		slog.WarnContext(ctx, "Dropping event of unknown kind", "kind", event.Kind)
		return nil
	}
}

// ProcessPendingExports exports every ledger entry still marked pending.
// This is the backup mechanism for lost AMQP messages.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, p := range pending {
		if err := w.exportSnapshot(ctx, p.SnapshotID); err != nil {
			slog.ErrorContext(ctx, "Failed to export snapshot",
				"snapshot_id", p.SnapshotID, "error", err)
			continue
		}
	}

	return nil
}

// StartupExportCheck drains the pending ledger at worker startup. This
// recovers from missed AMQP messages or worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	pending, err := w.store.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, p := range pending {
		if err := w.exportSnapshot(ctx, p.SnapshotID); err != nil {
			slog.ErrorContext(ctx, "Failed to export snapshot during startup",
				"snapshot_id", p.SnapshotID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *ExportWorker) exportSnapshot(ctx context.Context, id int64) error {
	snap, err := w.store.GetSnapshot(ctx, id)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "snapshot_id", id, "error", markErr)
		}
		return fmt.Errorf("get snapshot: %w", err)
	}

	if !snap.IsApproved {
		// An unapproved snapshot should never sit in the ledger; skip
		// rather than export unapproved figures.
		slog.WarnContext(ctx, "Skipping unapproved snapshot", "snapshot_id", id)
		return nil
	}

	ref, err := w.writer.AppendSnapshot(ctx, snap)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "snapshot_id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.store.MarkExported(ctx, id); err != nil {
		// The row is written; failing here would re-export it later, which
		// duplicates data. Log and move on.
		slog.ErrorContext(ctx, "Failed to mark as exported", "snapshot_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported snapshot",
		"snapshot_id", id,
		"batch_id", snap.BatchID,
		"sheet_ref", ref,
		"total_cents", snap.Total.Cents)

	return nil
}
