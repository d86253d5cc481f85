package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"forecast/internal/core"
	"forecast/internal/store"
	"forecast/internal/store/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	captured []string // batch ids
	approved []int64  // snapshot ids
	fail     bool
}

func (p *recordingPublisher) PublishBatchCaptured(_ context.Context, batchID string, _ []int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.captured = append(p.captured, batchID)
	return nil
}

func (p *recordingPublisher) PublishSnapshotApproved(_ context.Context, snapshotID int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.approved = append(p.approved, snapshotID)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newService(t *testing.T) (*ForecastService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewForecastService(memory.NewFromFiles("no-seeds"), pub)
	return svc, pub
}

func seedForecast(t *testing.T, svc *ForecastService, departmentID, projectID int64) core.Forecast {
	t.Helper()
	f, err := svc.CreateForecast(context.Background(), store.ForecastDraft{
		DepartmentID: departmentID,
		ProjectID:    projectID,
		ProjectName:  "Platform",
		CreatedBy:    "ann",
	})
	if err != nil {
		t.Fatalf("CreateForecast: %v", err)
	}
	return f
}

func TestUpdateFieldRoutesThroughValidator(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	f := seedForecast(t, svc, 1, 1)

	got, err := svc.UpdateField(ctx, f.ID, "jan", "123.45")
	if err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	if got.Months[0].Cents != 12345 || got.Total.Cents != 12345 || got.YearlySum.Cents != 12345 {
		t.Errorf("after month edit: %+v", got)
	}

	if _, err := svc.UpdateField(ctx, f.ID, "jan", "not-a-number"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("bad amount: got %v", err)
	}
	if _, err := svc.UpdateField(ctx, f.ID, "quarterly_total", "1"); !errors.Is(err, core.ErrUnknownField) {
		t.Errorf("unknown field: got %v", err)
	}

	got, err = svc.UpdateField(ctx, f.ID, store.FieldWBS, "WBS-7")
	if err != nil {
		t.Fatalf("text field edit: %v", err)
	}
	if got.WBS != "WBS-7" {
		t.Errorf("wbs = %q", got.WBS)
	}
}

func TestUpdateYearlySumSpreadEvenly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	f := seedForecast(t, svc, 1, 1)

	got, err := svc.UpdateYearlySum(ctx, f.ID, "1200000")
	if err != nil {
		t.Fatalf("UpdateYearlySum: %v", err)
	}
	for i, m := range got.Months {
		if m.Cents != 10_000_000 {
			t.Fatalf("month %d = %d, want 10000000 (100000.00)", i, m.Cents)
		}
	}
	if got.Total.Cents != 120_000_000 || got.YearlySum.Cents != 120_000_000 {
		t.Errorf("totals = %d/%d", got.Total.Cents, got.YearlySum.Cents)
	}
}

func TestCaptureGeneratesDistinctBatchIDs(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()
	seedForecast(t, svc, 1, 1)
	seedForecast(t, svc, 1, 2)

	first, err := svc.CaptureBatch(ctx, 1, "ann")
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	second, err := svc.CaptureBatch(ctx, 1, "ann")
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("member counts: %d, %d", len(first), len(second))
	}
	if first[0].BatchID != first[1].BatchID {
		t.Error("members of one capture must share a batch id")
	}
	if first[0].BatchID == second[0].BatchID {
		t.Error("repeat captures must get fresh batch ids")
	}
	if len(pub.captured) != 2 {
		t.Errorf("published %d capture messages, want 2", len(pub.captured))
	}

	if _, err := svc.CaptureBatch(ctx, 2, "ann"); !errors.Is(err, core.ErrEmptyDepartment) {
		t.Errorf("empty department: got %v", err)
	}
}

func TestPublishFailureDoesNotFailCapture(t *testing.T) {
	svc, pub := newService(t)
	pub.fail = true
	ctx := context.Background()
	f := seedForecast(t, svc, 1, 1)

	if _, err := svc.CaptureSnapshot(ctx, f.ID, "ann"); err != nil {
		t.Fatalf("capture should survive a publish failure: %v", err)
	}
	snaps, err := svc.ListSnapshots(ctx)
	if err != nil || len(snaps) != 1 {
		t.Fatalf("snapshot not durable: %v, n=%d", err, len(snaps))
	}
}

func TestApproveBatchIsPartial(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()
	seedForecast(t, svc, 1, 1)
	seedForecast(t, svc, 1, 2)

	snaps, err := svc.CaptureBatch(ctx, 1, "ann")
	if err != nil {
		t.Fatal(err)
	}
	batchID := snaps[0].BatchID

	// Approve one member up front; batch approval must skip it, not fail.
	if _, err := svc.ApproveSnapshot(ctx, snaps[0].ID, "boss"); err != nil {
		t.Fatal(err)
	}

	results, err := svc.ApproveBatch(ctx, batchID, "boss")
	if err != nil {
		t.Fatalf("ApproveBatch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d member results, want 1 (pre-approved member skipped)", len(results))
	}
	if results[0].SnapshotID != snaps[1].ID || results[0].Err != nil {
		t.Errorf("member result = %+v", results[0])
	}

	batches, err := svc.ListBatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || !batches[0].AllApproved {
		t.Errorf("batch view = %+v", batches)
	}

	if _, err := svc.ApproveBatch(ctx, "no-such-batch", "boss"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown batch: got %v", err)
	}
	if len(pub.approved) != 2 {
		t.Errorf("published %d approval messages, want 2", len(pub.approved))
	}
}

func TestComputeAggregates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a1 := seedForecast(t, svc, 1, 1)
	a2 := seedForecast(t, svc, 1, 2)
	a3 := seedForecast(t, svc, 1, 1)
	b1 := seedForecast(t, svc, 2, 3)

	for _, tt := range []struct {
		id    int64
		cents string
	}{
		{a1.ID, "1.00"}, {a2.ID, "2.00"}, {a3.ID, "3.00"}, {b1.ID, "5.00"},
	} {
		if _, err := svc.UpdateField(ctx, tt.id, "jan", tt.cents); err != nil {
			t.Fatal(err)
		}
	}

	view, err := svc.ComputeAggregates(ctx, store.ForecastFilter{}, core.ByProject)
	if err != nil {
		t.Fatalf("ComputeAggregates: %v", err)
	}
	if view.ByDepartment[1].Cents != 600 || view.ByDepartment[2].Cents != 500 {
		t.Errorf("ByDepartment = %v", view.ByDepartment)
	}
	if view.GrandTotal.Cents != 1100 {
		t.Errorf("GrandTotal = %d, want 1100", view.GrandTotal.Cents)
	}

	// Filtered view only aggregates what the filter admits.
	deptOnly, err := svc.ComputeAggregates(ctx, store.ForecastFilter{DepartmentID: 2}, core.ByProject)
	if err != nil {
		t.Fatal(err)
	}
	if deptOnly.GrandTotal.Cents != 500 {
		t.Errorf("filtered grand total = %d, want 500", deptOnly.GrandTotal.Cents)
	}
}

func TestCloseWithNilPublisher(t *testing.T) {
	svc := NewForecastService(memory.NewFromFiles("no-seeds"), nil)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
