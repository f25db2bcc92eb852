package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

// Scenario defines a live query test scenario.
// A scenario seeds a store, observes one query, applies a sequence of
// steps, and checks the deliveries the callback received.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Collection is the queried collection. Records default to it.
	Collection string `yaml:"collection"`

	// Records are stored before the query is observed, in order.
	Records []RecordSpec `yaml:"records,omitempty"`

	// Where is the base predicate in where-node form. Absent matches every
	// record in Collection.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Pin is the pinned id when the query is first observed.
	Pin string `yaml:"pin,omitempty"`

	// Steps run in order after the first bind. The delivery loop is drained
	// after each one.
	Steps []Step `yaml:"steps"`

	// Expect lists the expected deliveries and reports.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions validate the trace and final state.
	// Supported types: delivery_count, last_delivery, report_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RecordSpec is a record written by the scenario.
type RecordSpec struct {
	ID         string                 `yaml:"id"`
	Collection string                 `yaml:"collection,omitempty"`
	Fields     map[string]interface{} `yaml:"fields"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	// Put stores a record (insert or update).
	Put *RecordSpec `yaml:"put,omitempty"`

	// Delete removes the record with this id.
	Delete string `yaml:"delete,omitempty"`

	// Pin publishes a pinned id. Re-pinning the same id still rebinds.
	Pin string `yaml:"pin,omitempty"`

	// Unpin publishes "no pinned record".
	Unpin bool `yaml:"unpin,omitempty"`

	// FailStore makes later evaluations fail with this message.
	FailStore string `yaml:"fail_store,omitempty"`

	// RestoreStore undoes FailStore.
	RestoreStore bool `yaml:"restore_store,omitempty"`

	// FailFeed breaks every live collection with this message.
	FailFeed string `yaml:"fail_feed,omitempty"`

	// Rebind rebinds the query without a pin change.
	Rebind bool `yaml:"rebind,omitempty"`
}

// Expect specifies the expected callback history.
type Expect struct {
	// Deliveries lists every callback invocation in order: a list of ids,
	// or null for "no results".
	Deliveries []*[]string `yaml:"deliveries"`

	// Reports is the expected number of reported errors.
	Reports *int `yaml:"reports,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "delivery_count": exactly Count deliveries
	// - "last_delivery": the last delivery holds IDs in order (Nil for null)
	// - "report_count": Count reports, all with Code when set
	// - "final_state": record ID exists with Expect fields (subset match)
	Type string `yaml:"type"`

	Count  int                    `yaml:"count,omitempty"`
	IDs    []string               `yaml:"ids,omitempty"`
	Nil    bool                   `yaml:"nil,omitempty"`
	Code   string                 `yaml:"code,omitempty"`
	ID     string                 `yaml:"id,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertDeliveryCount = "delivery_count"
	AssertLastDelivery  = "last_delivery"
	AssertReportCount   = "report_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate required fields
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml/.yml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Query builds the scenario's base query.
func (s *Scenario) Query() (queryir.Select, error) {
	q := queryir.Select{From: s.Collection}
	if s.Where == nil {
		return q, nil
	}
	node, err := ir.FromGo(s.Where)
	if err != nil {
		return queryir.Select{}, fmt.Errorf("where: %w", err)
	}
	pred, err := queryir.DecodeWhere(node)
	if err != nil {
		return queryir.Select{}, err
	}
	q.Filter = pred
	return q, nil
}

// Record converts the spec into a record, defaulting the collection.
func (r RecordSpec) Record(collection string) (ir.Record, error) {
	fields, err := convertFields(r.Fields)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %q: %w", r.ID, err)
	}
	if r.Collection != "" {
		collection = r.Collection
	}
	return ir.Record{
		ID:         ir.RecordID(r.ID),
		Collection: collection,
		Fields:     fields,
	}, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Collection == "" {
		return fmt.Errorf("collection is required")
	}

	if _, err := s.Query(); err != nil {
		return err
	}

	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	// Validate records
	for i, r := range s.Records {
		if r.ID == "" {
			return fmt.Errorf("records[%d]: id is required", i)
		}
	}

	// Validate steps
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	// Validate assertions
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set.
func validateStep(step Step) error {
	set := 0
	for _, ok := range []bool{
		step.Put != nil,
		step.Delete != "",
		step.Pin != "",
		step.Unpin,
		step.FailStore != "",
		step.RestoreStore,
		step.FailFeed != "",
		step.Rebind,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required, got %d", set)
	}
	if step.Put != nil && step.Put.ID == "" {
		return fmt.Errorf("put: id is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDeliveryCount, AssertReportCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertLastDelivery:
		if a.Nil && len(a.IDs) > 0 {
			return fmt.Errorf("assertions[%d]: ids and nil are exclusive for last_delivery", index)
		}
	case AssertFinalState:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
