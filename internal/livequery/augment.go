package livequery

import (
	"fmt"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

// Augment returns the effective predicate for base with pinned forced in.
//
//   - pinned absent: a fresh predicate rebuilt from base's canonical form
//   - pinned present: Or{clone(base), id == pinned}
//   - base nil (every record): nil, which already matches pinned
//
// base is never mutated. Augment fails only when base has no canonical form.
func Augment(base queryir.Predicate, pinned ir.RecordID) (queryir.Predicate, error) {
	clone, err := queryir.Clone(base)
	if err != nil {
		return nil, fmt.Errorf("augment: %w", err)
	}
	if clone == nil || pinned == ir.NoRecord {
		return clone, nil
	}
	return queryir.Or{Predicates: []queryir.Predicate{clone, queryir.IDEquals(pinned)}}, nil
}
