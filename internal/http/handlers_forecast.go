package http

import (
	"log/slog"
	"net/http"

	"forecast/internal/store"
)

func (s *Server) handleListForecasts(w http.ResponseWriter, r *http.Request) {
	filter := store.ForecastFilter{
		DepartmentID: queryInt64(r, "department_id"),
		ProjectID:    queryInt64(r, "project_id"),
	}

	forecasts, err := s.svc.ListForecasts(r.Context(), filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "List forecasts failed", "error", err)
		writeDomainError(w, err)
		return
	}

	out := make([]forecastJSON, len(forecasts))
	for i, f := range forecasts {
		out[i] = toForecastJSON(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateForecast(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	draft := store.ForecastDraft{
		DepartmentID: p.GetInt64("department_id"),
		ProjectID:    p.GetInt64("project_id"),
		ProjectName:  p.Get("project_name"),
		ProfitCenter: p.Get("profit_center"),
		WBS:          p.Get("wbs"),
		Account:      p.Get("account"),
		CreatedBy:    p.Get("created_by"),
	}
	if draft.DepartmentID == 0 || draft.ProjectID == 0 {
		writeError(w, http.StatusBadRequest, "department_id and project_id are required")
		return
	}

	f, err := s.svc.CreateForecast(r.Context(), draft)
	if err != nil {
		slog.ErrorContext(r.Context(), "Create forecast failed",
			"department_id", draft.DepartmentID, "project_id", draft.ProjectID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toForecastJSON(f))
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	f, err := s.svc.GetForecast(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastJSON(f))
}

func (s *Server) handleDeleteForecast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.svc.DeleteForecast(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateField edits one month amount or one descriptive field.
// Body: {"field": "jan", "value": "1234.56"}.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	field := p.Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}

	f, err := s.svc.UpdateField(r.Context(), id, field, p.Get("value"))
	if err != nil {
		slog.WarnContext(r.Context(), "Field update rejected",
			"forecast_id", id, "field", field, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastJSON(f))
}

// handleUpdateYearlySum replaces the yearly total and spreads it evenly
// across the months. Body: {"value": "120000.00"}.
func (s *Server) handleUpdateYearlySum(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	f, err := s.svc.UpdateYearlySum(r.Context(), id, p.Get("value"))
	if err != nil {
		slog.WarnContext(r.Context(), "Yearly sum update rejected",
			"forecast_id", id, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastJSON(f))
}
