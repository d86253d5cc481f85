package core

import (
	"sort"
	"time"
)

// Aggregation is pure and recomputed on every read. Nothing here caches or
// mutates shared state; callers pass an explicit slice of current records.

// GrandTotal sums Total over the full filtered set.
func GrandTotal(forecasts []Forecast) Money {
	var sum int64
	for _, f := range forecasts {
		sum += f.Total.Cents
	}
	return Money{Cents: sum}
}

// TotalsByDepartment sums forecast totals grouped by department id.
func TotalsByDepartment(forecasts []Forecast) map[int64]Money {
	out := make(map[int64]Money)
	for _, f := range forecasts {
		out[f.DepartmentID] = Money{Cents: out[f.DepartmentID].Cents + f.Total.Cents}
	}
	return out
}

// TotalsByProject sums forecast totals grouped by project id.
func TotalsByProject(forecasts []Forecast) map[int64]Money {
	out := make(map[int64]Money)
	for _, f := range forecasts {
		out[f.ProjectID] = Money{Cents: out[f.ProjectID].Cents + f.Total.Cents}
	}
	return out
}

// GroupTotals sums forecast totals keyed by the descriptive field the caller
// selected (account, WBS or project name).
func GroupTotals(forecasts []Forecast, dim GroupDimension) map[string]Money {
	out := make(map[string]Money)
	for _, f := range forecasts {
		key := f.DimensionValue(dim)
		out[key] = Money{Cents: out[key].Cents + f.Total.Cents}
	}
	return out
}

// BatchGroup is the display view of one capture batch.
type BatchGroup struct {
	BatchID      string
	SnapshotDate time.Time
	SubmittedBy  string
	Snapshots    []Snapshot
	AllApproved  bool
}

// GroupSnapshotsByBatch partitions snapshots by batch id. Batches come back
// most recent first; members within a batch are ordered by project name.
// AllApproved is the logical AND over every member.
func GroupSnapshotsByBatch(snapshots []Snapshot) []BatchGroup {
	byBatch := make(map[string]*BatchGroup)
	for _, s := range snapshots {
		g, ok := byBatch[s.BatchID]
		if !ok {
			g = &BatchGroup{
				BatchID:      s.BatchID,
				SnapshotDate: s.SnapshotDate,
				SubmittedBy:  s.SubmittedBy,
				AllApproved:  true,
			}
			byBatch[s.BatchID] = g
		}
		if s.SnapshotDate.Before(g.SnapshotDate) {
			g.SnapshotDate = s.SnapshotDate
		}
		g.Snapshots = append(g.Snapshots, s)
		g.AllApproved = g.AllApproved && s.IsApproved
	}

	groups := make([]BatchGroup, 0, len(byBatch))
	for _, g := range byBatch {
		sort.Slice(g.Snapshots, func(i, j int) bool {
			return g.Snapshots[i].ProjectName < g.Snapshots[j].ProjectName
		})
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].SnapshotDate.Equal(groups[j].SnapshotDate) {
			return groups[i].SnapshotDate.After(groups[j].SnapshotDate)
		}
		return groups[i].BatchID < groups[j].BatchID
	})
	return groups
}
