package core

import (
	"errors"
	"testing"
)

func monthsOf(cents ...int64) [12]Money {
	var out [12]Money
	for i, c := range cents {
		out[i] = Money{Cents: c}
	}
	return out
}

func TestCheckTotals(t *testing.T) {
	months := monthsOf(100, 200, 300)

	if err := CheckTotals(months, Money{Cents: 600}, Money{Cents: 600}); err != nil {
		t.Fatalf("consistent record rejected: %v", err)
	}

	err := CheckTotals(months, Money{Cents: 500}, Money{Cents: 600})
	if !errors.Is(err, ErrInconsistentTotals) {
		t.Fatalf("expected ErrInconsistentTotals, got %v", err)
	}
	var ite *InconsistentTotalsError
	if !errors.As(err, &ite) {
		t.Fatalf("expected *InconsistentTotalsError, got %T", err)
	}
	if ite.ExpectedCents != 600 || ite.TotalCents != 500 || ite.YearlySumCents != 600 {
		t.Errorf("unexpected detail: %+v", ite)
	}

	if err := CheckTotals(months, Money{Cents: 600}, Money{Cents: 601}); !errors.Is(err, ErrInconsistentTotals) {
		t.Errorf("yearly sum drift not caught: %v", err)
	}
}

func TestRecomputed(t *testing.T) {
	f := Forecast{Months: monthsOf(1, 2, 3)}
	f = Recomputed(f)
	if f.Total.Cents != 6 || f.YearlySum.Cents != 6 {
		t.Errorf("Recomputed: total=%d yearly=%d, want 6", f.Total.Cents, f.YearlySum.Cents)
	}
	if err := CheckTotals(f.Months, f.Total, f.YearlySum); err != nil {
		t.Errorf("recomputed record inconsistent: %v", err)
	}
}

func TestForecastValidate(t *testing.T) {
	f := Recomputed(Forecast{DepartmentID: 1, ProjectID: 2, Months: monthsOf(100)})
	if err := f.Validate(); err != nil {
		t.Fatalf("valid forecast rejected: %v", err)
	}

	bad := f
	bad.DepartmentID = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("missing department: got %v", err)
	}

	neg := f
	neg.Months[3] = Money{Cents: -1}
	if err := neg.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative month: got %v", err)
	}
}

func TestMonthIndex(t *testing.T) {
	if i, ok := MonthIndex("jan"); !ok || i != 0 {
		t.Errorf("jan -> (%d, %v)", i, ok)
	}
	if i, ok := MonthIndex(" DEC "); !ok || i != 11 {
		t.Errorf("dec -> (%d, %v)", i, ok)
	}
	if _, ok := MonthIndex("smarch"); ok {
		t.Error("smarch should not resolve")
	}
}
