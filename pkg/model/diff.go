package model

// ChangeKind classifies how a serialized unit changed between two
// snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// DiffEntry describes the change to one serialized unit between two
// snapshots. Computed on demand, never persisted.
type DiffEntry struct {
	UnitName         string     `json:"unit_name"`
	ChangeKind       ChangeKind `json:"change_kind"`
	AffectedRowCount int        `json:"affected_row_count"`
}
