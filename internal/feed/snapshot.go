package feed

import (
	"github.com/roach88/liveview/internal/ir"
)

// Snapshot is an immutable, ordered view of the records matching a query at
// one point in time. Accessors return copies; a Snapshot is superseded by the
// next one, never mutated.
type Snapshot struct {
	records []ir.Record
	index   map[ir.RecordID]int
}

// NewSnapshot builds a snapshot from records in the given order.
// The records are deep-copied.
func NewSnapshot(records []ir.Record) *Snapshot {
	s := &Snapshot{
		records: make([]ir.Record, len(records)),
		index:   make(map[ir.RecordID]int, len(records)),
	}
	for i, r := range records {
		s.records[i] = r.Clone()
		s.index[r.ID] = i
	}
	return s
}

// EmptySnapshot returns a snapshot with no records.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil)
}

// Len returns the number of records. A nil snapshot has length 0.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// At returns a copy of the record at position i.
func (s *Snapshot) At(i int) ir.Record {
	return s.records[i].Clone()
}

// Records returns a copy of all records in order.
func (s *Snapshot) Records() []ir.Record {
	if s == nil {
		return nil
	}
	out := make([]ir.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// IDs returns the record ids in order.
func (s *Snapshot) IDs() []ir.RecordID {
	if s == nil {
		return nil
	}
	out := make([]ir.RecordID, len(s.records))
	for i, r := range s.records {
		out[i] = r.ID
	}
	return out
}

// IndexOf returns the position of id, or -1.
func (s *Snapshot) IndexOf(id ir.RecordID) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Contains reports whether id is in the snapshot.
func (s *Snapshot) Contains(id ir.RecordID) bool {
	return s.IndexOf(id) >= 0
}

// Digest returns the content digest of the snapshot (order-sensitive).
func (s *Snapshot) Digest() (string, error) {
	if s == nil {
		return ir.SnapshotDigest(nil)
	}
	return ir.SnapshotDigest(s.records)
}

// Diff computes the change sets turning prev into next.
// Records are matched by id; a record present in both with a different
// Version is a modification. Moves are not reported separately: stores order
// by insertion sequence, which never changes for a surviving record.
func Diff(prev, next *Snapshot) (deletions, insertions, modifications []int) {
	for i, r := range prev.recordsOrNil() {
		if !next.Contains(r.ID) {
			deletions = append(deletions, i)
		}
	}
	for i, r := range next.recordsOrNil() {
		j := prev.IndexOf(r.ID)
		if j < 0 {
			insertions = append(insertions, i)
			continue
		}
		if prev.records[j].Version != r.Version {
			modifications = append(modifications, i)
		}
	}
	return deletions, insertions, modifications
}

func (s *Snapshot) recordsOrNil() []ir.Record {
	if s == nil {
		return nil
	}
	return s.records
}
