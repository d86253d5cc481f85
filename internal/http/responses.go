package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"forecast/internal/core"
	"forecast/internal/services"
)

// forecastJSON is the wire shape of a live forecast. Amounts are decimal
// strings with two fraction digits.
type forecastJSON struct {
	ID           int64             `json:"id"`
	DepartmentID int64             `json:"department_id"`
	ProjectID    int64             `json:"project_id"`
	ProjectName  string            `json:"project_name"`
	ProfitCenter string            `json:"profit_center,omitempty"`
	WBS          string            `json:"wbs,omitempty"`
	Account      string            `json:"account,omitempty"`
	Months       map[string]string `json:"months"`
	Total        string            `json:"total"`
	YearlySum    string            `json:"yearly_sum"`
	CreatedBy    string            `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type snapshotJSON struct {
	ID           int64             `json:"id"`
	ForecastID   int64             `json:"forecast_id"`
	BatchID      string            `json:"batch_id"`
	DepartmentID int64             `json:"department_id"`
	ProjectID    int64             `json:"project_id"`
	ProjectName  string            `json:"project_name"`
	ProfitCenter string            `json:"profit_center,omitempty"`
	WBS          string            `json:"wbs,omitempty"`
	Account      string            `json:"account,omitempty"`
	Months       map[string]string `json:"months"`
	Total        string            `json:"total"`
	YearlySum    string            `json:"yearly_sum"`
	SubmittedBy  string            `json:"submitted_by"`
	SnapshotDate time.Time         `json:"snapshot_date"`
	IsApproved   bool              `json:"is_approved"`
	ApprovedBy   string            `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time        `json:"approved_at,omitempty"`
}

type batchJSON struct {
	BatchID      string         `json:"batch_id"`
	SnapshotDate time.Time      `json:"snapshot_date"`
	SubmittedBy  string         `json:"submitted_by"`
	AllApproved  bool           `json:"all_approved"`
	Snapshots    []snapshotJSON `json:"snapshots"`
}

func monthsJSON(months [12]core.Money) map[string]string {
	out := make(map[string]string, 12)
	for i, m := range months {
		out[core.MonthNames[i]] = m.Decimal()
	}
	return out
}

func toForecastJSON(f core.Forecast) forecastJSON {
	return forecastJSON{
		ID:           f.ID,
		DepartmentID: f.DepartmentID,
		ProjectID:    f.ProjectID,
		ProjectName:  f.ProjectName,
		ProfitCenter: f.ProfitCenter,
		WBS:          f.WBS,
		Account:      f.Account,
		Months:       monthsJSON(f.Months),
		Total:        f.Total.Decimal(),
		YearlySum:    f.YearlySum.Decimal(),
		CreatedBy:    f.CreatedBy,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func toSnapshotJSON(snap core.Snapshot) snapshotJSON {
	return snapshotJSON{
		ID:           snap.ID,
		ForecastID:   snap.ForecastID,
		BatchID:      snap.BatchID,
		DepartmentID: snap.DepartmentID,
		ProjectID:    snap.ProjectID,
		ProjectName:  snap.ProjectName,
		ProfitCenter: snap.ProfitCenter,
		WBS:          snap.WBS,
		Account:      snap.Account,
		Months:       monthsJSON(snap.Months),
		Total:        snap.Total.Decimal(),
		YearlySum:    snap.YearlySum.Decimal(),
		SubmittedBy:  snap.SubmittedBy,
		SnapshotDate: snap.SnapshotDate,
		IsApproved:   snap.IsApproved,
		ApprovedBy:   snap.ApprovedBy,
		ApprovedAt:   snap.ApprovedAt,
	}
}

func toSnapshotListJSON(snaps []core.Snapshot) []snapshotJSON {
	out := make([]snapshotJSON, len(snaps))
	for i, snap := range snaps {
		out[i] = toSnapshotJSON(snap)
	}
	return out
}

func toBatchJSON(b core.BatchGroup) batchJSON {
	return batchJSON{
		BatchID:      b.BatchID,
		SnapshotDate: b.SnapshotDate,
		SubmittedBy:  b.SubmittedBy,
		AllApproved:  b.AllApproved,
		Snapshots:    toSnapshotListJSON(b.Snapshots),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorJSON struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses. Consistency
// failures carry the expected and stored totals in the detail field.
func writeDomainError(w http.ResponseWriter, err error) {
	var inconsistent *core.InconsistentTotalsError
	if errors.As(err, &inconsistent) {
		writeJSON(w, http.StatusUnprocessableEntity, errorJSON{
			Error: "inconsistent totals",
			Detail: map[string]int64{
				"expected_cents":   inconsistent.ExpectedCents,
				"total_cents":      inconsistent.TotalCents,
				"yearly_sum_cents": inconsistent.YearlySumCents,
			},
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "project does not belong to department")
	case errors.Is(err, core.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
	case errors.Is(err, core.ErrNameTooLong):
		writeError(w, http.StatusUnprocessableEntity, "project name too long")
	case errors.Is(err, core.ErrUnknownField):
		writeError(w, http.StatusBadRequest, "unknown field")
	case errors.Is(err, core.ErrEmptyDepartment):
		writeError(w, http.StatusConflict, "department has no forecasts")
	case errors.Is(err, core.ErrAlreadyApproved):
		writeError(w, http.StatusConflict, "snapshot already approved")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type memberResultJSON struct {
	SnapshotID int64  `json:"snapshot_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func toMemberResultsJSON(results []services.MemberResult) []memberResultJSON {
	out := make([]memberResultJSON, len(results))
	for i, r := range results {
		out[i] = memberResultJSON{SnapshotID: r.SnapshotID, Status: "approved"}
		if r.Err != nil {
			out[i].Status = "failed"
			out[i].Error = r.Err.Error()
		}
	}
	return out
}
