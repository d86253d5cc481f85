package core

// CheckTotals is the single source of truth for monetary consistency: the
// claimed total and yearly sum must both equal the exact sum of the twelve
// months. Every mutation path routes through it before persisting.
func CheckTotals(months [12]Money, total, yearlySum Money) error {
	expected := SumMonths(months).Cents
	if total.Cents != expected || yearlySum.Cents != expected {
		return &InconsistentTotalsError{
			ExpectedCents:  expected,
			TotalCents:     total.Cents,
			YearlySumCents: yearlySum.Cents,
		}
	}
	return nil
}

// Recomputed returns a copy of f with Total and YearlySum set to the sum of
// its months. Used by month-level edits so a record is never observable in an
// inconsistent state.
func Recomputed(f Forecast) Forecast {
	sum := SumMonths(f.Months)
	f.Total = sum
	f.YearlySum = sum
	return f
}
