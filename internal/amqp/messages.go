package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the export queue.
const (
	EventBatchCaptured    = "batch_captured"
	EventSnapshotApproved = "snapshot_approved"
)

// ExportEvent is the lightweight message the server publishes after a durable
// snapshot write. It carries only identifiers; the worker fetches the full
// snapshot rows from the database.
type ExportEvent struct {
	Kind        string    `json:"kind"`
	BatchID     string    `json:"batch_id"`
	SnapshotID  int64     `json:"snapshot_id,omitempty"`
	SnapshotIDs []int64   `json:"snapshot_ids,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewBatchCapturedEvent(batchID string, snapshotIDs []int64) *ExportEvent {
	return &ExportEvent{
		Kind:        EventBatchCaptured,
		BatchID:     batchID,
		SnapshotIDs: snapshotIDs,
		Timestamp:   time.Now(),
	}
}

func NewSnapshotApprovedEvent(snapshotID int64, batchID string) *ExportEvent {
	return &ExportEvent{
		Kind:       EventSnapshotApproved,
		BatchID:    batchID,
		SnapshotID: snapshotID,
		Timestamp:  time.Now(),
	}
}

func (e *ExportEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ExportEventFromJSON(data []byte) (*ExportEvent, error) {
	var e ExportEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
