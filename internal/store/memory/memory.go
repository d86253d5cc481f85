// Package memory implements the store ports with an in-process,
// mutex-guarded backend. It is the default backend and the one the test
// suites run against.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"forecast/internal/core"
	"forecast/internal/store"
)

type exportState struct {
	state     string // pending | exported | error
	createdAt time.Time
	batchID   string
}

type Store struct {
	mu sync.Mutex

	departments []core.Department
	projects    []core.Project

	forecasts      map[int64]core.Forecast
	snapshots      map[int64]core.Snapshot
	exports        map[int64]*exportState
	nextForecastID int64
	nextSnapshotID int64

	now func() time.Time
}

func New(departments []core.Department, projects []core.Project) *Store {
	return &Store{
		departments: departments,
		projects:    projects,
		forecasts:   make(map[int64]core.Forecast),
		snapshots:   make(map[int64]core.Snapshot),
		exports:     make(map[int64]*exportState),
		now:         time.Now,
	}
}

// NewFromFiles seeds the catalog from plain-text files under base:
// seed_departments.txt ("CODE,Name" per line) and seed_projects.txt
// ("DEPT_CODE,CODE,Name" per line). Falls back to a small default catalog
// when the files are absent.
func NewFromFiles(base string) *Store {
	departments, projects := readCatalog(
		filepath.Join(base, "seed_departments.txt"),
		filepath.Join(base, "seed_projects.txt"),
	)
	if len(departments) == 0 {
		departments = []core.Department{
			{ID: 1, Name: "Engineering", Code: "ENG"},
			{ID: 2, Name: "Marketing", Code: "MKT"},
		}
		projects = []core.Project{
			{ID: 1, Name: "Platform", Code: "PLT", DepartmentID: 1},
			{ID: 2, Name: "Mobile", Code: "MOB", DepartmentID: 1},
			{ID: 3, Name: "Campaigns", Code: "CMP", DepartmentID: 2},
		}
	}
	return New(departments, projects)
}

func readCatalog(deptPath, projPath string) ([]core.Department, []core.Project) {
	var departments []core.Department
	byCode := map[string]int64{}
	for _, line := range readLines(deptPath) {
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		id := int64(len(departments) + 1)
		code := strings.TrimSpace(parts[0])
		departments = append(departments, core.Department{
			ID:   id,
			Code: code,
			Name: strings.TrimSpace(parts[1]),
		})
		byCode[code] = id
	}

	var projects []core.Project
	for _, line := range readLines(projPath) {
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			continue
		}
		deptID, ok := byCode[strings.TrimSpace(parts[0])]
		if !ok {
			continue
		}
		projects = append(projects, core.Project{
			ID:           int64(len(projects) + 1),
			DepartmentID: deptID,
			Code:         strings.TrimSpace(parts[1]),
			Name:         strings.TrimSpace(parts[2]),
		})
	}
	return departments, projects
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Interface conformance.
var (
	_ store.ForecastStore = (*Store)(nil)
	_ store.SnapshotStore = (*Store)(nil)
	_ store.Catalog       = (*Store)(nil)
	_ store.ExportLedger  = (*Store)(nil)
)

func (s *Store) Close() error { return nil }

// --- Catalog ---

func (s *Store) ListDepartments(_ context.Context) ([]core.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Department(nil), s.departments...), nil
}

func (s *Store) ListProjects(_ context.Context) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Project(nil), s.projects...), nil
}

func (s *Store) DepartmentExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.departments {
		if d.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ProjectBelongsTo(_ context.Context, projectID, departmentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == projectID {
			return p.DepartmentID == departmentID, nil
		}
	}
	return false, nil
}

// --- ForecastStore ---

func (s *Store) CreateForecast(ctx context.Context, draft store.ForecastDraft) (core.Forecast, error) {
	ok, err := s.ProjectBelongsTo(ctx, draft.ProjectID, draft.DepartmentID)
	if err != nil {
		return core.Forecast{}, err
	}
	if !ok {
		return core.Forecast{}, core.ErrInvalidReference
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextForecastID++
	now := s.now()
	f := core.Forecast{
		ID:           s.nextForecastID,
		DepartmentID: draft.DepartmentID,
		ProjectID:    draft.ProjectID,
		ProjectName:  draft.ProjectName,
		ProfitCenter: draft.ProfitCenter,
		WBS:          draft.WBS,
		Account:      draft.Account,
		CreatedBy:    draft.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.forecasts[f.ID] = f
	return f, nil
}

func (s *Store) GetForecast(_ context.Context, id int64) (core.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forecasts[id]
	if !ok {
		return core.Forecast{}, core.ErrNotFound
	}
	return f, nil
}

func (s *Store) UpdateMonth(_ context.Context, id int64, monthIdx int, cents int64) (core.Forecast, error) {
	if monthIdx < 0 || monthIdx > 11 {
		return core.Forecast{}, core.ErrUnknownField
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forecasts[id]
	if !ok {
		return core.Forecast{}, core.ErrNotFound
	}
	f.Months[monthIdx] = core.Money{Cents: cents}
	f = core.Recomputed(f)
	f.UpdatedAt = s.now()
	s.forecasts[id] = f
	return f, nil
}

func (s *Store) UpdateYearlySum(_ context.Context, id int64, cents int64) (core.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forecasts[id]
	if !ok {
		return core.Forecast{}, core.ErrNotFound
	}
	f.Months = core.SplitYearEven(core.Money{Cents: cents})
	f.Total = core.Money{Cents: cents}
	f.YearlySum = core.Money{Cents: cents}
	f.UpdatedAt = s.now()
	s.forecasts[id] = f
	return f, nil
}

func (s *Store) UpdateText(_ context.Context, id int64, field, value string) (core.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forecasts[id]
	if !ok {
		return core.Forecast{}, core.ErrNotFound
	}
	switch field {
	case store.FieldProjectName:
		f.ProjectName = value
	case store.FieldProfitCenter:
		f.ProfitCenter = value
	case store.FieldWBS:
		f.WBS = value
	case store.FieldAccount:
		f.Account = value
	default:
		return core.Forecast{}, core.ErrUnknownField
	}
	f.UpdatedAt = s.now()
	s.forecasts[id] = f
	return f, nil
}

func (s *Store) DeleteForecast(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forecasts[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.forecasts, id)
	return nil
}

func (s *Store) ListForecasts(_ context.Context, filter store.ForecastFilter) ([]core.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Forecast, 0, len(s.forecasts))
	for _, f := range s.forecasts {
		if filter.DepartmentID != 0 && f.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.ProjectID != 0 && f.ProjectID != filter.ProjectID {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- SnapshotStore ---

func (s *Store) CaptureOne(_ context.Context, forecastID int64, batchID, submittedBy string, at time.Time) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forecasts[forecastID]
	if !ok {
		return core.Snapshot{}, core.ErrNotFound
	}
	if err := core.CheckTotals(f.Months, f.Total, f.YearlySum); err != nil {
		return core.Snapshot{}, err
	}
	return s.insertSnapshotLocked(f, batchID, submittedBy, at), nil
}

func (s *Store) CaptureBatch(_ context.Context, departmentID int64, batchID, submittedBy string, at time.Time) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var members []core.Forecast
	for _, f := range s.forecasts {
		if f.DepartmentID == departmentID {
			members = append(members, f)
		}
	}
	if len(members) == 0 {
		return nil, core.ErrEmptyDepartment
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	// Validate every member before the first insert so a failure leaves
	// zero snapshots behind.
	for _, f := range members {
		if err := core.CheckTotals(f.Months, f.Total, f.YearlySum); err != nil {
			return nil, err
		}
	}

	out := make([]core.Snapshot, 0, len(members))
	for _, f := range members {
		out = append(out, s.insertSnapshotLocked(f, batchID, submittedBy, at))
	}
	return out, nil
}

func (s *Store) insertSnapshotLocked(f core.Forecast, batchID, submittedBy string, at time.Time) core.Snapshot {
	s.nextSnapshotID++
	snap := f.CaptureSnapshot(batchID, submittedBy, at)
	snap.ID = s.nextSnapshotID
	s.snapshots[snap.ID] = snap
	return snap
}

func (s *Store) GetSnapshot(_ context.Context, id int64) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return core.Snapshot{}, core.ErrNotFound
	}
	return snap, nil
}

func (s *Store) ApproveSnapshot(_ context.Context, id int64, approvedBy string, at time.Time) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return core.Snapshot{}, core.ErrNotFound
	}
	if snap.IsApproved {
		return core.Snapshot{}, core.ErrAlreadyApproved
	}
	snap.IsApproved = true
	snap.ApprovedBy = approvedBy
	approvedAt := at
	snap.ApprovedAt = &approvedAt
	s.snapshots[id] = snap
	s.exports[id] = &exportState{state: "pending", createdAt: at, batchID: snap.BatchID}
	return snap, nil
}

func (s *Store) DeleteSnapshot(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.snapshots, id)
	delete(s.exports, id)
	return nil
}

func (s *Store) ListSnapshots(_ context.Context) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SnapshotDate.Equal(out[j].SnapshotDate) {
			return out[i].SnapshotDate.After(out[j].SnapshotDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) ListSnapshotsByBatch(_ context.Context, batchID string) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Snapshot
	for _, snap := range s.snapshots {
		if snap.BatchID == batchID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- ExportLedger ---

func (s *Store) PendingExports(_ context.Context, limit int) ([]store.PendingExport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.PendingExport
	for id, e := range s.exports {
		if e.state != "pending" {
			continue
		}
		out = append(out, store.PendingExport{SnapshotID: id, BatchID: e.batchID, CreatedAt: e.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotID < out[j].SnapshotID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, snapshotID int64) error {
	return s.setExportState(snapshotID, "exported")
}

func (s *Store) MarkExportError(_ context.Context, snapshotID int64) error {
	return s.setExportState(snapshotID, "error")
}

func (s *Store) setExportState(snapshotID int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exports[snapshotID]
	if !ok {
		return core.ErrNotFound
	}
	e.state = state
	return nil
}
