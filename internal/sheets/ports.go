package sheets

import (
	"context"

	"forecast/internal/core"
)

// Ports for outbound adapters.
type (
	// SnapshotWriter appends one approved snapshot to the export sheet and
	// returns a reference to the written row.
	SnapshotWriter interface {
		AppendSnapshot(ctx context.Context, snap core.Snapshot) (rowRef string, err error)
	}
)
