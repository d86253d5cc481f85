package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forecast/internal/services"
	"forecast/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := services.NewForecastService(memory.NewFromFiles("no-seeds"), nil)
	s := NewServer(":0", svc)
	t.Cleanup(func() { s.rateLimiter.stop() })
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createForecast(t *testing.T, s *Server, departmentID, projectID int64) forecastJSON {
	t.Helper()
	body := fmt.Sprintf(`{"department_id": %d, "project_id": %d, "project_name": "Platform", "created_by": "ann"}`,
		departmentID, projectID)
	rec := doJSON(t, s, http.MethodPost, "/api/forecasts", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create forecast: status %d, body %s", rec.Code, rec.Body.String())
	}
	var f forecastJSON
	decodeBody(t, rec, &f)
	return f
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestForecastLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	f := createForecast(t, s, 1, 1)
	if f.Total != "0.00" || f.Months["jan"] != "0.00" {
		t.Errorf("new forecast should start at zero: %+v", f)
	}

	rec := doJSON(t, s, http.MethodPatch, fmt.Sprintf("/api/forecasts/%d/field", f.ID),
		`{"field": "mar", "value": "1500.50"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("field update: status %d, body %s", rec.Code, rec.Body.String())
	}
	var updated forecastJSON
	decodeBody(t, rec, &updated)
	if updated.Months["mar"] != "1500.50" || updated.Total != "1500.50" || updated.YearlySum != "1500.50" {
		t.Errorf("after month edit: %+v", updated)
	}

	rec = doJSON(t, s, http.MethodPatch, fmt.Sprintf("/api/forecasts/%d/yearly-sum", f.ID),
		`{"value": "1200.00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("yearly sum update: status %d", rec.Code)
	}
	decodeBody(t, rec, &updated)
	if updated.Months["jan"] != "100.00" || updated.Months["dec"] != "100.00" {
		t.Errorf("yearly spread: %+v", updated.Months)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/forecasts?department_id=1", "")
	var list []forecastJSON
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("list returned %d forecasts", len(list))
	}

	rec = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/forecasts/%d", f.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/forecasts/%d", f.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	f := createForecast(t, s, 1, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{
			name:   "project from another department",
			method: http.MethodPost,
			path:   "/api/forecasts",
			body:   `{"department_id": 1, "project_id": 3}`,
			want:   http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown field name",
			method: http.MethodPatch,
			path:   fmt.Sprintf("/api/forecasts/%d/field", f.ID),
			body:   `{"field": "quarter_one", "value": "10"}`,
			want:   http.StatusBadRequest,
		},
		{
			name:   "negative amount",
			method: http.MethodPatch,
			path:   fmt.Sprintf("/api/forecasts/%d/field", f.ID),
			body:   `{"field": "jan", "value": "-5.00"}`,
			want:   http.StatusUnprocessableEntity,
		},
		{
			name:   "capture for empty department",
			method: http.MethodPost,
			path:   "/api/snapshots/batch",
			body:   `{"department_id": 2, "submitted_by": "ann"}`,
			want:   http.StatusConflict,
		},
		{
			name:   "approve unknown batch",
			method: http.MethodPost,
			path:   "/api/batches/no-such-batch/approve",
			body:   `{"approved_by": "boss"}`,
			want:   http.StatusNotFound,
		},
		{
			name:   "missing required ids",
			method: http.MethodPost,
			path:   "/api/forecasts",
			body:   `{"project_name": "Orphan"}`,
			want:   http.StatusBadRequest,
		},
		{
			name:   "invalid aggregate dimension",
			method: http.MethodGet,
			path:   "/api/aggregates?dimension=quarter",
			body:   "",
			want:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSnapshotLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	createForecast(t, s, 1, 1)
	createForecast(t, s, 1, 2)

	rec := doJSON(t, s, http.MethodPost, "/api/snapshots/batch",
		`{"department_id": 1, "submitted_by": "ann"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch capture: status %d, body %s", rec.Code, rec.Body.String())
	}
	var snaps []snapshotJSON
	decodeBody(t, rec, &snaps)
	if len(snaps) != 2 {
		t.Fatalf("captured %d snapshots, want 2", len(snaps))
	}
	batchID := snaps[0].BatchID

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/snapshots/%d/approve", snaps[0].ID),
		`{"approved_by": "boss"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d", rec.Code)
	}
	var approved snapshotJSON
	decodeBody(t, rec, &approved)
	if !approved.IsApproved || approved.ApprovedBy != "boss" || approved.ApprovedAt == nil {
		t.Errorf("approval fields: %+v", approved)
	}

	// Second approval of the same snapshot conflicts.
	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/snapshots/%d/approve", snaps[0].ID),
		`{"approved_by": "boss"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("re-approve: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/batches/"+batchID+"/approve",
		`{"approved_by": "boss"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch approve: status %d, body %s", rec.Code, rec.Body.String())
	}
	var results []memberResultJSON
	decodeBody(t, rec, &results)
	if len(results) != 1 || results[0].Status != "approved" {
		t.Errorf("batch results = %+v", results)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/batches", "")
	var batches []batchJSON
	decodeBody(t, rec, &batches)
	if len(batches) != 1 || !batches[0].AllApproved || len(batches[0].Snapshots) != 2 {
		t.Errorf("batch view = %+v", batches)
	}
}

func TestSnapshotKeepsValuesAfterSourceEdit(t *testing.T) {
	s := newTestServer(t)
	f := createForecast(t, s, 1, 1)

	doJSON(t, s, http.MethodPatch, fmt.Sprintf("/api/forecasts/%d/field", f.ID),
		`{"field": "jan", "value": "100.00"}`)

	rec := doJSON(t, s, http.MethodPost, "/api/snapshots",
		fmt.Sprintf(`{"forecast_id": %d, "submitted_by": "ann"}`, f.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("capture: status %d", rec.Code)
	}
	var snap snapshotJSON
	decodeBody(t, rec, &snap)

	doJSON(t, s, http.MethodPatch, fmt.Sprintf("/api/forecasts/%d/field", f.ID),
		`{"field": "jan", "value": "999.00"}`)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/snapshots/%d", snap.ID), "")
	var reread snapshotJSON
	decodeBody(t, rec, &reread)
	if reread.Months["jan"] != "100.00" {
		t.Errorf("snapshot jan = %s, want the value at capture time", reread.Months["jan"])
	}
}

func TestAggregatesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	a := createForecast(t, s, 1, 1)
	b := createForecast(t, s, 1, 2)
	c := createForecast(t, s, 2, 3)

	for id, amount := range map[int64]string{a.ID: "100.00", b.ID: "200.00", c.ID: "50.00"} {
		rec := doJSON(t, s, http.MethodPatch, fmt.Sprintf("/api/forecasts/%d/field", id),
			fmt.Sprintf(`{"field": "jun", "value": "%s"}`, amount))
		if rec.Code != http.StatusOK {
			t.Fatalf("seed amount: status %d", rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/aggregates?dimension=project", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("aggregates: status %d", rec.Code)
	}
	var agg aggregatesJSON
	decodeBody(t, rec, &agg)
	if agg.GrandTotal != "350.00" {
		t.Errorf("grand total = %s, want 350.00", agg.GrandTotal)
	}
	if agg.ByDepartment[1] != "300.00" || agg.ByDepartment[2] != "50.00" {
		t.Errorf("by department = %v", agg.ByDepartment)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/aggregates?department_id=2", "")
	decodeBody(t, rec, &agg)
	if agg.GrandTotal != "50.00" {
		t.Errorf("filtered grand total = %s, want 50.00", agg.GrandTotal)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/departments", "")
	var departments []departmentJSON
	decodeBody(t, rec, &departments)
	if len(departments) != 2 {
		t.Errorf("departments = %+v", departments)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/projects", "")
	var projects []projectJSON
	decodeBody(t, rec, &projects)
	if len(projects) != 3 {
		t.Errorf("projects = %+v", projects)
	}
}
