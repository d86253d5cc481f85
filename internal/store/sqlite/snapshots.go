package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"forecast/internal/core"
	"forecast/internal/store"
)

const snapshotColumns = `id, forecast_id, batch_id, department_id, project_id, project_name,
	profit_center, wbs, account,
	jan_cents, feb_cents, mar_cents, apr_cents, may_cents, jun_cents,
	jul_cents, aug_cents, sep_cents, oct_cents, nov_cents, dec_cents,
	total_cents, yearly_sum_cents, submitted_by, snapshot_date, is_approved, approved_by, approved_at`

func scanSnapshot(row rowScanner) (core.Snapshot, error) {
	var (
		s          core.Snapshot
		approvedBy sql.NullString
		approvedAt sql.NullTime
	)
	dest := []any{
		&s.ID, &s.ForecastID, &s.BatchID, &s.DepartmentID, &s.ProjectID, &s.ProjectName,
		&s.ProfitCenter, &s.WBS, &s.Account,
	}
	for i := range s.Months {
		dest = append(dest, &s.Months[i].Cents)
	}
	dest = append(dest, &s.Total.Cents, &s.YearlySum.Cents, &s.SubmittedBy,
		&s.SnapshotDate, &s.IsApproved, &approvedBy, &approvedAt)
	if err := row.Scan(dest...); err != nil {
		return core.Snapshot{}, err
	}
	if approvedBy.Valid {
		s.ApprovedBy = approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		s.ApprovedAt = &t
	}
	return s, nil
}

func insertSnapshotTx(ctx context.Context, tx *sql.Tx, snap core.Snapshot) (int64, error) {
	args := []any{
		snap.ForecastID, snap.BatchID, snap.DepartmentID, snap.ProjectID, snap.ProjectName,
		snap.ProfitCenter, snap.WBS, snap.Account,
	}
	for _, m := range snap.Months {
		args = append(args, m.Cents)
	}
	args = append(args, snap.Total.Cents, snap.YearlySum.Cents, snap.SubmittedBy, snap.SnapshotDate)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO forecast_snapshots (forecast_id, batch_id, department_id, project_id, project_name,
			profit_center, wbs, account,
			jan_cents, feb_cents, mar_cents, apr_cents, may_cents, jun_cents,
			jul_cents, aug_cents, sep_cents, oct_cents, nov_cents, dec_cents,
			total_cents, yearly_sum_cents, submitted_by, snapshot_date, is_approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// --- SnapshotStore ---

func (r *Repository) CaptureOne(ctx context.Context, forecastID int64, batchID, submittedBy string, at time.Time) (core.Snapshot, error) {
	var out core.Snapshot
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		f, err := getForecastTx(ctx, tx, forecastID)
		if err != nil {
			return err
		}
		if err := core.CheckTotals(f.Months, f.Total, f.YearlySum); err != nil {
			return err
		}
		snap := f.CaptureSnapshot(batchID, submittedBy, at)
		id, err := insertSnapshotTx(ctx, tx, snap)
		if err != nil {
			return err
		}
		snap.ID = id
		out = snap
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	slog.InfoContext(ctx, "Snapshot captured",
		"snapshot_id", out.ID,
		"forecast_id", forecastID,
		"batch_id", batchID)
	return out, nil
}

// CaptureBatch reads the department's forecasts and writes every snapshot in
// one transaction: any failure rolls the whole batch back.
func (r *Repository) CaptureBatch(ctx context.Context, departmentID int64, batchID, submittedBy string, at time.Time) ([]core.Snapshot, error) {
	var out []core.Snapshot
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+forecastColumns+` FROM forecasts WHERE department_id = ? ORDER BY id`,
			departmentID)
		if err != nil {
			return fmt.Errorf("list department forecasts: %w", err)
		}
		var members []core.Forecast
		for rows.Next() {
			f, err := scanForecast(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan forecast: %w", err)
			}
			members = append(members, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(members) == 0 {
			return fmt.Errorf("department %d: %w", departmentID, core.ErrEmptyDepartment)
		}

		for _, f := range members {
			if err := core.CheckTotals(f.Months, f.Total, f.YearlySum); err != nil {
				return fmt.Errorf("forecast %d: %w", f.ID, err)
			}
		}

		for _, f := range members {
			snap := f.CaptureSnapshot(batchID, submittedBy, at)
			id, err := insertSnapshotTx(ctx, tx, snap)
			if err != nil {
				return err
			}
			snap.ID = id
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Batch captured",
		"batch_id", batchID,
		"department_id", departmentID,
		"snapshots", len(out))
	return out, nil
}

func (r *Repository) GetSnapshot(ctx context.Context, id int64) (core.Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM forecast_snapshots WHERE id = ?`, id)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

func (r *Repository) ApproveSnapshot(ctx context.Context, id int64, approvedBy string, at time.Time) (core.Snapshot, error) {
	var out core.Snapshot
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+snapshotColumns+` FROM forecast_snapshots WHERE id = ?`, id)
		s, err := scanSnapshot(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("snapshot %d: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		if s.IsApproved {
			return fmt.Errorf("snapshot %d: %w", id, core.ErrAlreadyApproved)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE forecast_snapshots
			SET is_approved = 1, approved_by = ?, approved_at = ?
			WHERE id = ?`, approvedBy, at, id); err != nil {
			return fmt.Errorf("approve snapshot: %w", err)
		}
		// Enqueue for the spreadsheet export worker.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_exports (snapshot_id, batch_id, state, created_at)
			VALUES (?, ?, 'pending', ?)
			ON CONFLICT (snapshot_id) DO UPDATE SET state = 'pending'`,
			id, s.BatchID, at); err != nil {
			return fmt.Errorf("enqueue export: %w", err)
		}

		s.IsApproved = true
		s.ApprovedBy = approvedBy
		approvedAt := at
		s.ApprovedAt = &approvedAt
		out = s
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	slog.InfoContext(ctx, "Snapshot approved",
		"snapshot_id", id,
		"approved_by", approvedBy)
	return out, nil
}

func (r *Repository) DeleteSnapshot(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM forecast_snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("snapshot %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Snapshot deleted", "snapshot_id", id)
	return nil
}

func (r *Repository) ListSnapshots(ctx context.Context) ([]core.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM forecast_snapshots ORDER BY snapshot_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

func (r *Repository) ListSnapshotsByBatch(ctx context.Context, batchID string) ([]core.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM forecast_snapshots WHERE batch_id = ? ORDER BY id`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots by batch: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

func collectSnapshots(rows *sql.Rows) ([]core.Snapshot, error) {
	var out []core.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- ExportLedger ---

func (r *Repository) PendingExports(ctx context.Context, limit int) ([]store.PendingExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT snapshot_id, batch_id, created_at
		FROM snapshot_exports
		WHERE state = 'pending'
		ORDER BY snapshot_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	defer rows.Close()

	var out []store.PendingExport
	for rows.Next() {
		var p store.PendingExport
		if err := rows.Scan(&p.SnapshotID, &p.BatchID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) MarkExported(ctx context.Context, snapshotID int64) error {
	return r.setExportState(ctx, snapshotID, "exported")
}

func (r *Repository) MarkExportError(ctx context.Context, snapshotID int64) error {
	return r.setExportState(ctx, snapshotID, "error")
}

func (r *Repository) setExportState(ctx context.Context, snapshotID int64, state string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE snapshot_exports SET state = ? WHERE snapshot_id = ?`, state, snapshotID)
	if err != nil {
		return fmt.Errorf("set export state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("export for snapshot %d: %w", snapshotID, core.ErrNotFound)
	}
	return nil
}
