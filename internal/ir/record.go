package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RecordID names one record across snapshots and stores.
type RecordID string

// NoRecord is the absent RecordID.
const NoRecord RecordID = ""

// IDField is the predicate field name that addresses Record.ID.
const IDField = "id"

// Record is the unit stored in a collection and listed in a snapshot.
type Record struct {
	ID         RecordID `json:"id"`
	Collection string   `json:"collection"`
	Fields     IRObject `json:"fields"`

	// Seq is the insertion position within the store. It defines the
	// natural store order and never changes on modification.
	Seq int64 `json:"seq"`

	// Version starts at 1 and increments on every in-place modification.
	Version int64 `json:"version"`
}

// Field returns a field value. The "id" field resolves to the record ID.
func (r Record) Field(name string) (IRValue, bool) {
	if name == IDField {
		return IRString(r.ID), true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Fields = r.Fields.Clone()
	return r
}

// Domain prefixes for digests. The version suffix allows algorithm changes.
const (
	DomainRecord   = "liveview/record/v1"
	DomainSnapshot = "liveview/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (r Record) canonicalObject() IRObject {
	fields := r.Fields
	if fields == nil {
		fields = IRObject{}
	}
	return IRObject{
		"id":         IRString(r.ID),
		"collection": IRString(r.Collection),
		"fields":     fields,
		"version":    IRInt(r.Version),
	}
}

// RecordDigest identifies a record's content, including its version.
func RecordDigest(r Record) (string, error) {
	canonical, err := MarshalCanonical(r.canonicalObject())
	if err != nil {
		return "", fmt.Errorf("RecordDigest: failed to marshal %q: %w", r.ID, err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// SnapshotDigest identifies an ordered list of records by their
// RecordDigests. Two snapshots with the same records in the same order share
// a digest.
func SnapshotDigest(records []Record) (string, error) {
	arr := make(IRArray, len(records))
	for i, r := range records {
		d, err := RecordDigest(r)
		if err != nil {
			return "", fmt.Errorf("SnapshotDigest: %w", err)
		}
		arr[i] = IRString(d)
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// IDGenerator produces ids for records stored without one.
type IDGenerator interface {
	Generate() RecordID
}

// UUIDv7Generator generates time-sortable UUIDv7 record ids.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() RecordID {
	return RecordID(uuid.Must(uuid.NewV7()).String())
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... for tests and
// fixtures that need stable ids. Safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator; an empty prefix means "rec".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "rec"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() RecordID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return RecordID(fmt.Sprintf("%s-%d", g.prefix, g.n))
}

// Version constants reported by the CLI.
const (
	// IRVersion is the record and predicate schema version.
	IRVersion = "1"

	// EngineVersion is the liveview version.
	EngineVersion = "0.1.0"
)
