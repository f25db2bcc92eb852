package harness

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(v ...string) *[]string {
	if v == nil {
		v = []string{}
	}
	return &v
}

func swiftScenario(name string) *Scenario {
	return &Scenario{
		Name:        name,
		Description: "Swift tracks",
		Collection:  "tracks",
		Records: []RecordSpec{
			{ID: "R1", Fields: map[string]interface{}{"title": "Swift Concurrency"}},
			{ID: "R2", Fields: map[string]interface{}{"title": "Metal"}},
		},
		Where: map[string]interface{}{
			"contains": map[string]interface{}{"title": "Swift"},
		},
	}
}

func TestRun_FirstBind(t *testing.T) {
	s := swiftScenario("first_bind")
	s.Expect = &Expect{Deliveries: []*[]string{ids("R1")}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, EventDelivery, result.Trace[0].Type)
	assert.Equal(t, 0, result.Trace[0].Step)
	assert.Equal(t, []string{"R1"}, result.Trace[0].IDs)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
}

func TestRun_PinIncludesNonMatch(t *testing.T) {
	s := swiftScenario("pin")
	s.Steps = []Step{{Pin: "R2"}}
	s.Expect = &Expect{Deliveries: []*[]string{ids("R1"), ids("R1", "R2")}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 1, result.Trace[1].Step)
}

func TestRun_InsertDeliveredOnce(t *testing.T) {
	s := swiftScenario("insert")
	s.Pin = "R2"
	s.Steps = []Step{{Put: &RecordSpec{ID: "R3", Fields: map[string]interface{}{"title": "SwiftUI"}}}}
	s.Expect = &Expect{Deliveries: []*[]string{ids("R1", "R2"), ids("R1", "R2", "R3")}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ModificationSuppressed(t *testing.T) {
	s := swiftScenario("modification")
	s.Steps = []Step{
		{Put: &RecordSpec{ID: "R1", Fields: map[string]interface{}{"title": "Swift Concurrency", "plays": 9}}},
	}
	s.Assertions = []Assertion{
		{Type: AssertDeliveryCount, Count: 1},
		{Type: AssertFinalState, ID: "R1", Expect: map[string]interface{}{"plays": 9}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_StoreUnavailable(t *testing.T) {
	s := swiftScenario("unavailable")
	s.Steps = []Step{
		{FailStore: "disk offline"},
		{Rebind: true},
	}
	s.Expect = &Expect{Deliveries: []*[]string{ids("R1"), nil}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	reports := result.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "STORE_UNAVAILABLE", reports[0].Code)
	assert.Equal(t, "tracks", reports[0].Collection)
	assert.Equal(t, 2, reports[0].Step)

	// The report precedes the nil delivery.
	require.Len(t, result.Trace, 3)
	assert.Equal(t, EventReport, result.Trace[1].Type)
	assert.True(t, result.Trace[2].Nil)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := swiftScenario("mismatch")
	s.Expect = &Expect{Deliveries: []*[]string{ids("R2")}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "delivery 1: expected [R2], got [R1]")
}

func TestRun_ExpectCountMismatch(t *testing.T) {
	s := swiftScenario("count_mismatch")
	reports := 1
	s.Expect = &Expect{Deliveries: []*[]string{ids("R1"), nil}, Reports: &reports}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected 2 deliveries, got 1: [[R1]]")
	assert.Contains(t, result.Errors[1], "expected 1 reports, got 0")
}

func TestRun_AssertionFailureRecorded(t *testing.T) {
	s := swiftScenario("assertion_failure")
	s.Assertions = []Assertion{{Type: AssertDeliveryCount, Count: 2}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: delivery_count")
}

func TestRun_StepErrorFailsRun(t *testing.T) {
	s := swiftScenario("step_error")
	s.Steps = []Step{{Delete: "missing"}}
	s.Expect = &Expect{}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
	assert.Contains(t, err.Error(), "record not found")
}

func TestRun_InvalidWhere(t *testing.T) {
	s := swiftScenario("invalid_where")
	s.Where = map[string]interface{}{"near": "x"}
	s.Expect = &Expect{}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build query")
}

func TestRunWithLogger_LogsSteps(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := swiftScenario("logged")
	s.Steps = []Step{{Unpin: true}}
	s.Expect = &Expect{Deliveries: []*[]string{ids("R1"), ids("R1")}}

	result, err := RunWithLogger(s, logger)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Contains(t, buf.String(), "step: unpin")
}

func TestRun_TestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
