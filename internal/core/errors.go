package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidReference = errors.New("invalid department/project reference")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDepartment  = errors.New("department has no forecasts to submit")
	ErrAlreadyApproved  = errors.New("snapshot already approved")
	ErrUnknownField     = errors.New("unknown forecast field")
	ErrNameTooLong      = errors.New("name too long (max 200 characters)")
)

// InconsistentTotalsError reports a monetary consistency failure, naming the
// sum the twelve months actually add up to and the values that were supplied.
type InconsistentTotalsError struct {
	ExpectedCents  int64
	TotalCents     int64
	YearlySumCents int64
}

func (e *InconsistentTotalsError) Error() string {
	return fmt.Sprintf("inconsistent totals: months sum to %d cents, total=%d, yearly_sum=%d",
		e.ExpectedCents, e.TotalCents, e.YearlySumCents)
}

// Is lets callers match with errors.Is(err, ErrInconsistentTotals).
func (e *InconsistentTotalsError) Is(target error) bool {
	return target == ErrInconsistentTotals
}

// ErrInconsistentTotals is the sentinel for InconsistentTotalsError values.
var ErrInconsistentTotals = errors.New("inconsistent totals")
