package core

import (
	"strings"
	"time"
)

// Month field names in storage order. Index i holds the name of month i+1.
var MonthNames = [12]string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

// MonthIndex returns the 0-based index for a month field name ("jan".."dec").
func MonthIndex(field string) (int, bool) {
	field = strings.ToLower(strings.TrimSpace(field))
	for i, name := range MonthNames {
		if name == field {
			return i, true
		}
	}
	return 0, false
}

// GroupDimension selects which descriptive field drives grouping in
// dimension-keyed aggregates.
type GroupDimension string

const (
	ByAccount GroupDimension = "account"
	ByWbs     GroupDimension = "wbs"
	ByProject GroupDimension = "project"
)

// IsValid returns true if the dimension is one of the known values.
func (d GroupDimension) IsValid() bool {
	switch d {
	case ByAccount, ByWbs, ByProject:
		return true
	default:
		return false
	}
}

type (
	Money struct {
		Cents int64
	}

	// Forecast is a mutable monthly spending plan for one
	// department/project/dimension row. Total and YearlySum are kept equal
	// to the sum of the twelve months by every write path.
	Forecast struct {
		ID           int64
		DepartmentID int64
		ProjectID    int64
		ProjectName  string
		ProfitCenter string
		WBS          string
		Account      string
		Months       [12]Money
		Total        Money
		YearlySum    Money
		CreatedBy    string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Snapshot is an immutable point-in-time copy of a Forecast, created
	// for approval. Only the approval fields ever change after creation.
	Snapshot struct {
		ID           int64
		ForecastID   int64
		BatchID      string
		DepartmentID int64
		ProjectID    int64
		ProjectName  string
		ProfitCenter string
		WBS          string
		Account      string
		Months       [12]Money
		Total        Money
		YearlySum    Money
		SubmittedBy  string
		SnapshotDate time.Time
		IsApproved   bool
		ApprovedBy   string
		ApprovedAt   *time.Time
	}

	Department struct {
		ID   int64
		Name string
		Code string
	}

	Project struct {
		ID           int64
		Name         string
		Code         string
		DepartmentID int64
	}
)

// DimensionValue returns the descriptive field selected by dim.
func (f Forecast) DimensionValue(dim GroupDimension) string {
	switch dim {
	case ByAccount:
		return f.Account
	case ByWbs:
		return f.WBS
	default:
		return f.ProjectName
	}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (f Forecast) Validate() error {
	if f.DepartmentID <= 0 || f.ProjectID <= 0 {
		return ErrInvalidReference
	}
	for _, m := range f.Months {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	if len(f.ProjectName) > 200 {
		return ErrNameTooLong
	}
	return CheckTotals(f.Months, f.Total, f.YearlySum)
}

// CaptureSnapshot copies the forecast verbatim into a new pending snapshot.
// The monetary fields are not recomputed or rounded.
func (f Forecast) CaptureSnapshot(batchID, submittedBy string, at time.Time) Snapshot {
	return Snapshot{
		ForecastID:   f.ID,
		BatchID:      batchID,
		DepartmentID: f.DepartmentID,
		ProjectID:    f.ProjectID,
		ProjectName:  f.ProjectName,
		ProfitCenter: f.ProfitCenter,
		WBS:          f.WBS,
		Account:      f.Account,
		Months:       f.Months,
		Total:        f.Total,
		YearlySum:    f.YearlySum,
		SubmittedBy:  submittedBy,
		SnapshotDate: at,
		IsApproved:   false,
	}
}
