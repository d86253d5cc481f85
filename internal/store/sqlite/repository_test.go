package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"forecast/internal/core"
	"forecast/internal/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "forecast.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCreate(t *testing.T, repo *Repository, departmentID, projectID int64) core.Forecast {
	t.Helper()
	f, err := repo.CreateForecast(context.Background(), store.ForecastDraft{
		DepartmentID: departmentID,
		ProjectID:    projectID,
		ProjectName:  "Test project",
		CreatedBy:    "tester",
	})
	if err != nil {
		t.Fatalf("CreateForecast: %v", err)
	}
	return f
}

func TestMigrationsSeedCatalog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	depts, err := repo.ListDepartments(ctx)
	if err != nil {
		t.Fatalf("ListDepartments: %v", err)
	}
	if len(depts) != 3 {
		t.Fatalf("got %d departments, want 3", len(depts))
	}
	if depts[0].Code != "ENG" {
		t.Errorf("first department code = %q, want ENG", depts[0].Code)
	}

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 4 {
		t.Fatalf("got %d projects, want 4", len(projects))
	}

	// Second read is served from the catalog cache.
	again, err := repo.ListDepartments(ctx)
	if err != nil {
		t.Fatalf("ListDepartments (cached): %v", err)
	}
	if len(again) != len(depts) {
		t.Errorf("cached read returned %d departments, want %d", len(again), len(depts))
	}
}

func TestCreateForecastValidatesReferences(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		departmentID int64
		projectID    int64
		wantErr      bool
	}{
		{"valid pair", 1, 1, false},
		{"project of another department", 1, 3, true},
		{"unknown department", 99, 1, true},
		{"unknown project", 1, 99, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.CreateForecast(ctx, store.ForecastDraft{
				DepartmentID: tt.departmentID,
				ProjectID:    tt.projectID,
			})
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidReference) {
					t.Fatalf("got %v, want ErrInvalidReference", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateForecast: %v", err)
			}
		})
	}
}

func TestUpdateMonthRecomputesTotals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := mustCreate(t, repo, 1, 1)

	updated, err := repo.UpdateMonth(ctx, f.ID, 2, 150050)
	if err != nil {
		t.Fatalf("UpdateMonth: %v", err)
	}
	if updated.Months[2].Cents != 150050 {
		t.Errorf("March = %d cents, want 150050", updated.Months[2].Cents)
	}
	if updated.Total.Cents != 150050 || updated.YearlySum.Cents != 150050 {
		t.Errorf("totals = %d/%d, want 150050/150050", updated.Total.Cents, updated.YearlySum.Cents)
	}

	// The written row must agree with the returned value.
	got, err := repo.GetForecast(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if got.Total.Cents != 150050 {
		t.Errorf("persisted total = %d, want 150050", got.Total.Cents)
	}

	if _, err := repo.UpdateMonth(ctx, f.ID, 12, 100); !errors.Is(err, core.ErrUnknownField) {
		t.Errorf("month index 12: got %v, want ErrUnknownField", err)
	}
}

func TestUpdateYearlySumSpreadsEvenly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := mustCreate(t, repo, 1, 1)

	// 1234.57 does not divide evenly; the remainder lands in December.
	updated, err := repo.UpdateYearlySum(ctx, f.ID, 123457)
	if err != nil {
		t.Fatalf("UpdateYearlySum: %v", err)
	}
	var sum int64
	for _, m := range updated.Months {
		sum += m.Cents
	}
	if sum != 123457 {
		t.Errorf("months sum to %d, want 123457", sum)
	}
	if updated.Months[0].Cents != 10288 {
		t.Errorf("January = %d, want 10288", updated.Months[0].Cents)
	}
	if updated.Months[11].Cents != 10289 {
		t.Errorf("December = %d, want 10289", updated.Months[11].Cents)
	}
	if updated.Total.Cents != 123457 || updated.YearlySum.Cents != 123457 {
		t.Errorf("totals = %d/%d, want 123457/123457", updated.Total.Cents, updated.YearlySum.Cents)
	}
}

func TestUpdateTextFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := mustCreate(t, repo, 1, 1)

	updated, err := repo.UpdateText(ctx, f.ID, store.FieldWBS, "WBS-42")
	if err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	if updated.WBS != "WBS-42" {
		t.Errorf("WBS = %q, want WBS-42", updated.WBS)
	}

	if _, err := repo.UpdateText(ctx, f.ID, "jan", "x"); !errors.Is(err, core.ErrUnknownField) {
		t.Errorf("non-text field: got %v, want ErrUnknownField", err)
	}
	if _, err := repo.UpdateText(ctx, 999, store.FieldWBS, "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestListForecastsFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mustCreate(t, repo, 1, 1)
	mustCreate(t, repo, 1, 2)
	mustCreate(t, repo, 2, 3)

	all, err := repo.ListForecasts(ctx, store.ForecastFilter{})
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d forecasts, want 3", len(all))
	}

	eng, err := repo.ListForecasts(ctx, store.ForecastFilter{DepartmentID: 1})
	if err != nil {
		t.Fatalf("ListForecasts(dept 1): %v", err)
	}
	if len(eng) != 2 {
		t.Errorf("department filter returned %d, want 2", len(eng))
	}

	mob, err := repo.ListForecasts(ctx, store.ForecastFilter{DepartmentID: 1, ProjectID: 2})
	if err != nil {
		t.Fatalf("ListForecasts(dept 1, project 2): %v", err)
	}
	if len(mob) != 1 {
		t.Errorf("combined filter returned %d, want 1", len(mob))
	}
}

func TestCaptureBatchEmptyDepartment(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.CaptureBatch(context.Background(), 3, "batch-1", "tester", time.Now())
	if !errors.Is(err, core.ErrEmptyDepartment) {
		t.Fatalf("got %v, want ErrEmptyDepartment", err)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := mustCreate(t, repo, 1, 1)
	if _, err := repo.UpdateMonth(ctx, f.ID, 0, 5000); err != nil {
		t.Fatalf("UpdateMonth: %v", err)
	}

	snap, err := repo.CaptureOne(ctx, f.ID, "batch-1", "alice", time.Now().UTC())
	if err != nil {
		t.Fatalf("CaptureOne: %v", err)
	}
	if snap.IsApproved {
		t.Fatal("new snapshot must start pending")
	}
	if snap.Months[0].Cents != 5000 {
		t.Errorf("snapshot January = %d, want 5000", snap.Months[0].Cents)
	}

	// Later edits to the live forecast never touch the snapshot.
	if _, err := repo.UpdateMonth(ctx, f.ID, 0, 9999); err != nil {
		t.Fatalf("UpdateMonth: %v", err)
	}
	got, err := repo.GetSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got.Months[0].Cents != 5000 {
		t.Errorf("snapshot January after edit = %d, want 5000", got.Months[0].Cents)
	}

	// Deleting the source keeps the snapshot.
	if err := repo.DeleteForecast(ctx, f.ID); err != nil {
		t.Fatalf("DeleteForecast: %v", err)
	}
	if _, err := repo.GetSnapshot(ctx, snap.ID); err != nil {
		t.Fatalf("GetSnapshot after forecast delete: %v", err)
	}

	approved, err := repo.ApproveSnapshot(ctx, snap.ID, "bob", time.Now().UTC())
	if err != nil {
		t.Fatalf("ApproveSnapshot: %v", err)
	}
	if !approved.IsApproved || approved.ApprovedBy != "bob" || approved.ApprovedAt == nil {
		t.Errorf("approval fields not set: %+v", approved)
	}

	if _, err := repo.ApproveSnapshot(ctx, snap.ID, "carol", time.Now().UTC()); !errors.Is(err, core.ErrAlreadyApproved) {
		t.Errorf("second approve: got %v, want ErrAlreadyApproved", err)
	}
	if _, err := repo.ApproveSnapshot(ctx, 999, "bob", time.Now().UTC()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown snapshot: got %v, want ErrNotFound", err)
	}
}

func TestApprovalEnqueuesExport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := mustCreate(t, repo, 1, 1)

	snap, err := repo.CaptureOne(ctx, f.ID, "batch-1", "alice", time.Now().UTC())
	if err != nil {
		t.Fatalf("CaptureOne: %v", err)
	}

	pending, err := repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("PendingExports: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending before approval = %d, want 0", len(pending))
	}

	if _, err := repo.ApproveSnapshot(ctx, snap.ID, "bob", time.Now().UTC()); err != nil {
		t.Fatalf("ApproveSnapshot: %v", err)
	}

	pending, err = repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("PendingExports: %v", err)
	}
	if len(pending) != 1 || pending[0].SnapshotID != snap.ID || pending[0].BatchID != "batch-1" {
		t.Fatalf("pending after approval = %+v, want one entry for snapshot %d", pending, snap.ID)
	}

	if err := repo.MarkExported(ctx, snap.ID); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	pending, err = repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("PendingExports: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after export = %d, want 0", len(pending))
	}

	if err := repo.MarkExportError(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("MarkExportError(999): got %v, want ErrNotFound", err)
	}
}

func TestCaptureBatchIsAtomicPerDepartment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mustCreate(t, repo, 1, 1)
	mustCreate(t, repo, 1, 2)
	mustCreate(t, repo, 2, 3)

	snaps, err := repo.CaptureBatch(ctx, 1, "batch-eng", "alice", time.Now().UTC())
	if err != nil {
		t.Fatalf("CaptureBatch: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	for _, s := range snaps {
		if s.BatchID != "batch-eng" {
			t.Errorf("snapshot %d batch = %q, want batch-eng", s.ID, s.BatchID)
		}
		if s.DepartmentID != 1 {
			t.Errorf("snapshot %d department = %d, want 1", s.ID, s.DepartmentID)
		}
	}

	members, err := repo.ListSnapshotsByBatch(ctx, "batch-eng")
	if err != nil {
		t.Fatalf("ListSnapshotsByBatch: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("batch lookup returned %d, want 2", len(members))
	}
}
