// Package store defines the outbound ports for forecast persistence.
// Backends: memory (default, tests) and sqlite (durable).
package store

import (
	"context"
	"time"

	"forecast/internal/core"
)

// ForecastFilter narrows a forecast listing. Zero values mean "no restriction
// on that axis"; both filters compose with AND semantics.
type ForecastFilter struct {
	DepartmentID int64
	ProjectID    int64
}

// ForecastDraft carries the caller-supplied fields for a new live forecast.
// All twelve months start at zero.
type ForecastDraft struct {
	DepartmentID int64
	ProjectID    int64
	ProjectName  string
	ProfitCenter string
	WBS          string
	Account      string
	CreatedBy    string
}

// TextFields that UpdateText accepts.
const (
	FieldProjectName  = "project_name"
	FieldProfitCenter = "profit_center"
	FieldWBS          = "wbs"
	FieldAccount      = "account"
)

// PendingExport is the minimal row the export worker needs to re-send an
// approved snapshot that never reached the spreadsheet.
type PendingExport struct {
	SnapshotID int64
	BatchID    string
	CreatedAt  time.Time
}

type (
	// ForecastStore holds the mutable live forecasts.
	ForecastStore interface {
		// CreateForecast fails with core.ErrInvalidReference when the
		// department does not exist or the project belongs elsewhere.
		CreateForecast(ctx context.Context, draft ForecastDraft) (core.Forecast, error)
		GetForecast(ctx context.Context, id int64) (core.Forecast, error)
		// UpdateMonth sets one monthly amount and recomputes total and
		// yearly sum in the same write; no reader ever observes an
		// inconsistent record.
		UpdateMonth(ctx context.Context, id int64, monthIdx int, cents int64) (core.Forecast, error)
		// UpdateYearlySum overwrites every month with an even split of
		// the new yearly amount (core.SplitYearEven).
		UpdateYearlySum(ctx context.Context, id int64, cents int64) (core.Forecast, error)
		// UpdateText edits one descriptive field (see Field* constants).
		UpdateText(ctx context.Context, id int64, field, value string) (core.Forecast, error)
		// DeleteForecast removes the live row; existing snapshots keep
		// their copied data.
		DeleteForecast(ctx context.Context, id int64) error
		ListForecasts(ctx context.Context, filter ForecastFilter) ([]core.Forecast, error)
	}

	// SnapshotStore owns the immutable snapshot records.
	SnapshotStore interface {
		// CaptureOne copies the named forecast into a new pending
		// snapshot under the given batch id.
		CaptureOne(ctx context.Context, forecastID int64, batchID, submittedBy string, at time.Time) (core.Snapshot, error)
		// CaptureBatch snapshots every forecast in the department under
		// one batch id, all-or-nothing. core.ErrEmptyDepartment when
		// there is nothing to submit.
		CaptureBatch(ctx context.Context, departmentID int64, batchID, submittedBy string, at time.Time) ([]core.Snapshot, error)
		GetSnapshot(ctx context.Context, id int64) (core.Snapshot, error)
		// ApproveSnapshot flips a pending snapshot to approved, exactly
		// once; core.ErrAlreadyApproved on retry.
		ApproveSnapshot(ctx context.Context, id int64, approvedBy string, at time.Time) (core.Snapshot, error)
		// DeleteSnapshot removes the row regardless of approval state.
		DeleteSnapshot(ctx context.Context, id int64) error
		// ListSnapshots returns all snapshots, most recent first.
		ListSnapshots(ctx context.Context) ([]core.Snapshot, error)
		ListSnapshotsByBatch(ctx context.Context, batchID string) ([]core.Snapshot, error)
	}

	// Catalog is the read-only department/project reference data. This
	// module does not own the master data; it only checks existence.
	Catalog interface {
		ListDepartments(ctx context.Context) ([]core.Department, error)
		ListProjects(ctx context.Context) ([]core.Project, error)
		DepartmentExists(ctx context.Context, id int64) (bool, error)
		ProjectBelongsTo(ctx context.Context, projectID, departmentID int64) (bool, error)
	}

	// ExportLedger tracks which approved snapshots still need exporting.
	// Kept as separate rows so captured snapshot fields stay immutable.
	ExportLedger interface {
		PendingExports(ctx context.Context, limit int) ([]PendingExport, error)
		MarkExported(ctx context.Context, snapshotID int64) error
		MarkExportError(ctx context.Context, snapshotID int64) error
	}

	// Backend is everything a full storage backend provides.
	Backend interface {
		ForecastStore
		SnapshotStore
		Catalog
		ExportLedger
		Close() error
	}
)
