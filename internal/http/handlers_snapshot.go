package http

import (
	"log/slog"
	"net/http"
)

// handleCaptureSnapshot snapshots one forecast.
// Body: {"forecast_id": 7, "submitted_by": "ann"}.
func (s *Server) handleCaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	forecastID := p.GetInt64("forecast_id")
	if forecastID <= 0 {
		writeError(w, http.StatusBadRequest, "forecast_id is required")
		return
	}

	snap, err := s.svc.CaptureSnapshot(r.Context(), forecastID, p.Get("submitted_by"))
	if err != nil {
		slog.WarnContext(r.Context(), "Snapshot capture rejected",
			"forecast_id", forecastID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotJSON(snap))
}

// handleCaptureBatch snapshots every forecast in a department under one
// batch id. Body: {"department_id": 1, "submitted_by": "ann"}.
func (s *Server) handleCaptureBatch(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	departmentID := p.GetInt64("department_id")
	if departmentID <= 0 {
		writeError(w, http.StatusBadRequest, "department_id is required")
		return
	}

	snaps, err := s.svc.CaptureBatch(r.Context(), departmentID, p.Get("submitted_by"))
	if err != nil {
		slog.WarnContext(r.Context(), "Batch capture rejected",
			"department_id", departmentID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotListJSON(snaps))
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.ListSnapshots(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List snapshots failed", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotListJSON(snaps))
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	snap, err := s.svc.GetSnapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotJSON(snap))
}

// handleApproveSnapshot approves one snapshot.
// Body: {"approved_by": "boss"}.
func (s *Server) handleApproveSnapshot(w http.ResponseWriter, r *http.Request) {
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

	snap, err := s.svc.ApproveSnapshot(r.Context(), id, p.Get("approved_by"))
	if err != nil {
		slog.WarnContext(r.Context(), "Snapshot approval rejected",
			"snapshot_id", id, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotJSON(snap))
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.svc.DeleteSnapshot(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.svc.ListBatches(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List batches failed", "error", err)
		writeDomainError(w, err)
		return
	}

	out := make([]batchJSON, len(batches))
	for i, b := range batches {
		out[i] = toBatchJSON(b)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleApproveBatch approves every pending member of the batch and reports
// per-member outcomes. Body: {"approved_by": "boss"}.
func (s *Server) handleApproveBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	results, err := s.svc.ApproveBatch(r.Context(), batchID, p.Get("approved_by"))
	if err != nil {
		slog.WarnContext(r.Context(), "Batch approval rejected",
			"batch_id", batchID, "error", err)
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	for _, res := range results {
		if res.Err != nil {
			// Partial approval: some members failed after others succeeded.
			status = http.StatusMultiStatus
			break
		}
	}
	writeJSON(w, status, toMemberResultsJSON(results))
}
