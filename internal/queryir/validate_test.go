package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/ir"
)

func TestValidate_ValidQuery(t *testing.T) {
	q := Select{
		From:   "tracks",
		Filter: AnyOf(Contains{Field: "title", Substring: "Swift"}, IDEquals("r2")),
	}

	result := Validate(q)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_NilFilter(t *testing.T) {
	result := Validate(Select{From: "tracks"})
	assert.True(t, result.Valid)
}

func TestValidate_Problems(t *testing.T) {
	testCases := []struct {
		name  string
		query Select
	}{
		{"bad collection", Select{From: "tracks; DROP"}},
		{"empty collection", Select{From: ""}},
		{"bad field", Select{From: "t", Filter: Contains{Field: "a-b", Substring: "x"}}},
		{"reserved field", Select{From: "t", Filter: Equals{Field: "matches", Value: ir.IRInt(1)}}},
		{"null literal", Select{From: "t", Filter: Equals{Field: "a", Value: ir.IRNull{}}}},
		{"nested nil", Select{From: "t", Filter: And{Predicates: []Predicate{nil}}}},
		{"deep problem", Select{From: "t", Filter: Or{Predicates: []Predicate{
			And{Predicates: []Predicate{Equals{Field: "a", Value: ir.IRObject{}}}},
		}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(tc.query)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Problems)
			assert.Error(t, result.Err())
		})
	}
}

func TestValidatePredicate_AccumulatesAll(t *testing.T) {
	result := ValidatePredicate(And{Predicates: []Predicate{
		Contains{Field: "1bad", Substring: "x"},
		Equals{Field: "ok", Value: ir.IRNull{}},
	}})
	assert.False(t, result.Valid)
	assert.Len(t, result.Problems, 2)
}
