package model

import "time"

// Ref is a revision reference understood by the history backend:
// a full snapshot ID, an abbreviation of one, or a symbolic name
// such as "HEAD" or "HEAD~1".
type Ref string

// Head references the most recent snapshot on the active line.
const Head Ref = "HEAD"

// String returns the reference as a plain string.
func (r Ref) String() string {
	return string(r)
}

// SnapshotID is the backend-assigned content address of a snapshot.
type SnapshotID string

// ShortID returns the first 8 characters for display.
func (id SnapshotID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// String returns the full snapshot ID as string.
func (id SnapshotID) String() string {
	return string(id)
}

// Ref returns the ID as a revision reference.
func (id SnapshotID) Ref() Ref {
	return Ref(id)
}

// Snapshot is one committed revision of the serialized store.
// Every snapshot except the very first has exactly one parent.
type Snapshot struct {
	ID        SnapshotID  `json:"id"`
	ParentID  *SnapshotID `json:"parent_id,omitempty"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}
