package http

import (
	"log/slog"
	"net/http"
	"strings"

	"forecast/internal/core"
	"forecast/internal/store"
)

type aggregatesJSON struct {
	ByDepartment map[int64]string  `json:"by_department"`
	ByProject    map[int64]string  `json:"by_project"`
	ByDimension  map[string]string `json:"by_dimension"`
	Dimension    string            `json:"dimension"`
	GrandTotal   string            `json:"grand_total"`
}

// handleAggregates recomputes totals over the filtered forecast set.
// Query: department_id, project_id, dimension (account|wbs|project).
func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	filter := store.ForecastFilter{
		DepartmentID: queryInt64(r, "department_id"),
		ProjectID:    queryInt64(r, "project_id"),
	}

	dim := core.GroupDimension(strings.TrimSpace(r.URL.Query().Get("dimension")))
	if dim == "" {
		dim = core.ByProject
	}
	if !dim.IsValid() {
		writeError(w, http.StatusBadRequest, "dimension must be one of account, wbs, project")
		return
	}

	view, err := s.svc.ComputeAggregates(r.Context(), filter, dim)
	if err != nil {
		slog.ErrorContext(r.Context(), "Aggregate computation failed", "error", err)
		writeDomainError(w, err)
		return
	}

	out := aggregatesJSON{
		ByDepartment: make(map[int64]string, len(view.ByDepartment)),
		ByProject:    make(map[int64]string, len(view.ByProject)),
		ByDimension:  make(map[string]string, len(view.ByDimension)),
		Dimension:    string(dim),
		GrandTotal:   view.GrandTotal.Decimal(),
	}
	for id, m := range view.ByDepartment {
		out.ByDepartment[id] = m.Decimal()
	}
	for id, m := range view.ByProject {
		out.ByProject[id] = m.Decimal()
	}
	for key, m := range view.ByDimension {
		out.ByDimension[key] = m.Decimal()
	}

	writeJSON(w, http.StatusOK, out)
}

type departmentJSON struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type projectJSON struct {
	ID           int64  `json:"id"`
	DepartmentID int64  `json:"department_id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
}

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := s.svc.ListDepartments(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List departments failed", "error", err)
		writeDomainError(w, err)
		return
	}

	out := make([]departmentJSON, len(departments))
	for i, d := range departments {
		out[i] = departmentJSON{ID: d.ID, Code: d.Code, Name: d.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List projects failed", "error", err)
		writeDomainError(w, err)
		return
	}

	out := make([]projectJSON, len(projects))
	for i, p := range projects {
		out[i] = projectJSON{ID: p.ID, DepartmentID: p.DepartmentID, Code: p.Code, Name: p.Name}
	}
	writeJSON(w, http.StatusOK, out)
}
