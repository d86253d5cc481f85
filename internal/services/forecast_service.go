// Package services orchestrates forecast and snapshot operations across the
// storage backend and the AMQP notification queue.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"forecast/internal/core"
	"forecast/internal/store"
)

// Publisher sends export notifications after durable writes. A nil publisher
// disables notifications; publish failures never fail the request.
type Publisher interface {
	PublishBatchCaptured(ctx context.Context, batchID string, snapshotIDs []int64) error
	PublishSnapshotApproved(ctx context.Context, snapshotID int64, batchID string) error
	Close() error
}

type ForecastService struct {
	store     store.Backend
	publisher Publisher
	now       func() time.Time
}

func NewForecastService(backend store.Backend, publisher Publisher) *ForecastService {
	return &ForecastService{
		store:     backend,
		publisher: publisher,
		now:       time.Now,
	}
}

// --- live forecasts ---

func (s *ForecastService) CreateForecast(ctx context.Context, draft store.ForecastDraft) (core.Forecast, error) {
	if len(draft.ProjectName) > 200 {
		return core.Forecast{}, core.ErrNameTooLong
	}
	f, err := s.store.CreateForecast(ctx, draft)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("create forecast: %w", err)
	}
	return f, nil
}

func (s *ForecastService) GetForecast(ctx context.Context, id int64) (core.Forecast, error) {
	return s.store.GetForecast(ctx, id)
}

// UpdateField edits a single field. Month fields ("jan".."dec") take a
// decimal amount and recompute the totals atomically with the edit;
// descriptive fields take the value as-is.
func (s *ForecastService) UpdateField(ctx context.Context, id int64, field, value string) (core.Forecast, error) {
	if idx, ok := core.MonthIndex(field); ok {
		cents, err := core.ParseDecimalToCents(value)
		if err != nil {
			return core.Forecast{}, fmt.Errorf("month %s: %w", field, err)
		}
		return s.store.UpdateMonth(ctx, id, idx, cents)
	}

	switch field {
	case store.FieldProjectName, store.FieldProfitCenter, store.FieldWBS, store.FieldAccount:
		if field == store.FieldProjectName && len(value) > 200 {
			return core.Forecast{}, core.ErrNameTooLong
		}
		return s.store.UpdateText(ctx, id, field, value)
	}
	return core.Forecast{}, fmt.Errorf("field %q: %w", field, core.ErrUnknownField)
}

// UpdateYearlySum overwrites all twelve months with an even share of the new
// yearly amount. This is a deliberate flat spread, not a proportional rescale
// of the previous monthly shape.
func (s *ForecastService) UpdateYearlySum(ctx context.Context, id int64, value string) (core.Forecast, error) {
	cents, err := core.ParseDecimalToCents(value)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("yearly sum: %w", err)
	}
	return s.store.UpdateYearlySum(ctx, id, cents)
}

func (s *ForecastService) DeleteForecast(ctx context.Context, id int64) error {
	return s.store.DeleteForecast(ctx, id)
}

func (s *ForecastService) ListForecasts(ctx context.Context, filter store.ForecastFilter) ([]core.Forecast, error) {
	return s.store.ListForecasts(ctx, filter)
}

// --- capture ---

// CaptureSnapshot copies the current state of one forecast into a pending
// snapshot under a fresh batch id.
func (s *ForecastService) CaptureSnapshot(ctx context.Context, forecastID int64, submittedBy string) (core.Snapshot, error) {
	batchID := uuid.NewString()
	snap, err := s.store.CaptureOne(ctx, forecastID, batchID, submittedBy, s.now())
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("capture snapshot: %w", err)
	}
	s.notifyCaptured(ctx, batchID, []int64{snap.ID})
	return snap, nil
}

// CaptureBatch snapshots every live forecast in the department under one new
// batch id, all-or-nothing.
func (s *ForecastService) CaptureBatch(ctx context.Context, departmentID int64, submittedBy string) ([]core.Snapshot, error) {
	batchID := uuid.NewString()
	snaps, err := s.store.CaptureBatch(ctx, departmentID, batchID, submittedBy, s.now())
	if err != nil {
		return nil, fmt.Errorf("capture batch: %w", err)
	}
	ids := make([]int64, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.ID
	}
	s.notifyCaptured(ctx, batchID, ids)
	return snaps, nil
}

func (s *ForecastService) notifyCaptured(ctx context.Context, batchID string, snapshotIDs []int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBatchCaptured(ctx, batchID, snapshotIDs); err != nil {
		// The snapshots are durable; the worker's reconcile pass covers
		// missed messages.
		slog.ErrorContext(ctx, "Failed to publish batch-captured message",
			"batch_id", batchID, "error", err)
	}
}

// --- approval ---

func (s *ForecastService) ApproveSnapshot(ctx context.Context, id int64, approvedBy string) (core.Snapshot, error) {
	snap, err := s.store.ApproveSnapshot(ctx, id, approvedBy, s.now())
	if err != nil {
		return core.Snapshot{}, err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSnapshotApproved(ctx, snap.ID, snap.BatchID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish snapshot-approved message",
				"snapshot_id", snap.ID, "error", err)
		}
	}
	return snap, nil
}

// MemberResult reports the outcome of one member in a batch approval.
type MemberResult struct {
	SnapshotID int64
	Err        error
}

// ApproveBatch applies approve to every pending member of the batch. Unlike
// capture, this is not atomic: members already approved are skipped and a
// member failure leaves earlier approvals in place. Callers should re-query
// state after a partial result.
func (s *ForecastService) ApproveBatch(ctx context.Context, batchID, approvedBy string) ([]MemberResult, error) {
	members, err := s.store.ListSnapshotsByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, core.ErrNotFound)
	}

	var results []MemberResult
	for _, m := range members {
		if m.IsApproved {
			continue
		}
		_, err := s.ApproveSnapshot(ctx, m.ID, approvedBy)
		results = append(results, MemberResult{SnapshotID: m.ID, Err: err})
	}
	return results, nil
}

func (s *ForecastService) GetSnapshot(ctx context.Context, id int64) (core.Snapshot, error) {
	return s.store.GetSnapshot(ctx, id)
}

func (s *ForecastService) DeleteSnapshot(ctx context.Context, id int64) error {
	return s.store.DeleteSnapshot(ctx, id)
}

func (s *ForecastService) ListSnapshots(ctx context.Context) ([]core.Snapshot, error) {
	return s.store.ListSnapshots(ctx)
}

// ListBatches groups all snapshots into their capture batches, most recent
// first. Recomputed on every call.
func (s *ForecastService) ListBatches(ctx context.Context) ([]core.BatchGroup, error) {
	snaps, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return core.GroupSnapshotsByBatch(snaps), nil
}

// --- aggregates ---

// AggregateView is the on-demand aggregation over a filtered forecast set.
// Nothing here is cached; every call recomputes from current store state.
type AggregateView struct {
	ByDepartment map[int64]core.Money
	ByProject    map[int64]core.Money
	ByDimension  map[string]core.Money
	GrandTotal   core.Money
}

func (s *ForecastService) ComputeAggregates(ctx context.Context, filter store.ForecastFilter, dim core.GroupDimension) (AggregateView, error) {
	if !dim.IsValid() {
		dim = core.ByProject
	}
	forecasts, err := s.store.ListForecasts(ctx, filter)
	if err != nil {
		return AggregateView{}, fmt.Errorf("list forecasts: %w", err)
	}
	return AggregateView{
		ByDepartment: core.TotalsByDepartment(forecasts),
		ByProject:    core.TotalsByProject(forecasts),
		ByDimension:  core.GroupTotals(forecasts, dim),
		GrandTotal:   core.GrandTotal(forecasts),
	}, nil
}

// --- catalog passthrough ---

func (s *ForecastService) ListDepartments(ctx context.Context) ([]core.Department, error) {
	return s.store.ListDepartments(ctx)
}

func (s *ForecastService) ListProjects(ctx context.Context) ([]core.Project, error) {
	return s.store.ListProjects(ctx)
}

// Close closes the storage backend and the publisher.
func (s *ForecastService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close forecast service: %v", errs)
	}
	return nil
}
