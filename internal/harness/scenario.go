package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStep separates generated records when an import gives none.
const DefaultStep = 10 * time.Second

// Scenario is one end-to-end run.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Now pins the clock seen by the calculators.
	Now time.Time `yaml:"now"`

	// Config is CUE source unified with the default configuration.
	Config string `yaml:"config,omitempty"`

	// Kit steps run before any import.
	Kit []KitStep `yaml:"kit,omitempty"`

	Imports []ImportStep `yaml:"imports"`

	// Calculate names calculator owners to run. Empty runs all of them.
	Calculate []string `yaml:"calculate,omitempty"`

	// Force recalculates existing outputs.
	Force bool `yaml:"force,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// KitStep is one kit operation.
type KitStep struct {
	// Op is one of new, add, retire or delete.
	Op        string    `yaml:"op"`
	Group     string    `yaml:"group,omitempty"`
	Item      string    `yaml:"item,omitempty"`
	Component string    `yaml:"component,omitempty"`
	Model     string    `yaml:"model,omitempty"`
	Name      string    `yaml:"name,omitempty"`
	At        time.Time `yaml:"at,omitempty"`
	Force     bool      `yaml:"force,omitempty"`
}

// ImportStep imports one activity, read from File or generated from
// Count records of Fields starting at Start.
type ImportStep struct {
	Hash   string            `yaml:"hash,omitempty"`
	File   string            `yaml:"file,omitempty"`
	Sport  string            `yaml:"sport,omitempty"`
	Start  time.Time         `yaml:"start,omitempty"`
	Step   string            `yaml:"step,omitempty"`
	Count  int               `yaml:"count,omitempty"`
	Fields map[string]any    `yaml:"fields,omitempty"`
	Define map[string]string `yaml:"define,omitempty"`
	Force  bool              `yaml:"force,omitempty"`

	// Error, when set, is a substring the import error must contain.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks the store after calculation.
type Assertion struct {
	Type  string `yaml:"type"`
	Name  string `yaml:"name,omitempty"`
	Owner string `yaml:"owner,omitempty"`

	// At and Value are used by value assertions. Tolerance defaults to
	// DefaultTolerance.
	At        time.Time `yaml:"at,omitempty"`
	Value     *float64  `yaml:"value,omitempty"`
	Tolerance float64   `yaml:"tolerance,omitempty"`

	// Count is used by count assertions.
	Count *int `yaml:"count,omitempty"`

	// Links is used by chain assertions.
	Links *int `yaml:"links,omitempty"`

	// Complete is used by complete assertions.
	Complete *bool `yaml:"complete,omitempty"`
}

// Assertion type constants.
const (
	AssertCount    = "count"
	AssertValue    = "value"
	AssertChain    = "chain"
	AssertComplete = "complete"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. Import file paths are resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	dir := filepath.Dir(path)
	for i, imp := range scenario.Imports {
		if imp.File != "" && !filepath.IsAbs(imp.File) {
			scenario.Imports[i].File = filepath.Join(dir, imp.File)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Now.IsZero() {
		return fmt.Errorf("now is required")
	}
	if len(s.Imports) == 0 {
		return fmt.Errorf("imports list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Kit {
		if err := validateKitStep(i, step); err != nil {
			return err
		}
	}
	for i, imp := range s.Imports {
		if err := validateImport(i, imp); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateKitStep(i int, step KitStep) error {
	switch step.Op {
	case "new":
		if step.Group == "" || step.Item == "" {
			return fmt.Errorf("kit[%d]: group and item are required for new", i)
		}
	case "add":
		if step.Item == "" || step.Component == "" || step.Model == "" {
			return fmt.Errorf("kit[%d]: item, component and model are required for add", i)
		}
	case "retire", "delete":
		if step.Name == "" {
			return fmt.Errorf("kit[%d]: name is required for %s", i, step.Op)
		}
	default:
		return fmt.Errorf("kit[%d]: unknown op %q", i, step.Op)
	}
	if step.Op != "delete" && step.At.IsZero() {
		return fmt.Errorf("kit[%d]: at is required for %s", i, step.Op)
	}
	return nil
}

func validateImport(i int, imp ImportStep) error {
	if imp.File != "" {
		if _, err := os.Stat(imp.File); err != nil {
			return fmt.Errorf("imports[%d]: %w", i, err)
		}
		return nil
	}
	if imp.Hash == "" {
		return fmt.Errorf("imports[%d]: hash is required without file", i)
	}
	if imp.Start.IsZero() {
		return fmt.Errorf("imports[%d]: start is required without file", i)
	}
	if imp.Count < 0 {
		return fmt.Errorf("imports[%d]: count must be non-negative", i)
	}
	if imp.Step != "" {
		if _, err := time.ParseDuration(imp.Step); err != nil {
			return fmt.Errorf("imports[%d]: step: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertCount:
		if a.Name == "" || a.Owner == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: name, owner and count are required for count", i)
		}
	case AssertValue:
		if a.Name == "" || a.Owner == "" || a.At.IsZero() || a.Value == nil {
			return fmt.Errorf("assertions[%d]: name, owner, at and value are required for value", i)
		}
	case AssertChain:
		if a.Links == nil {
			return fmt.Errorf("assertions[%d]: links is required for chain", i)
		}
	case AssertComplete:
		if a.Complete == nil {
			return fmt.Errorf("assertions[%d]: complete is required for complete", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

// step returns the record spacing of a generated import.
func (imp ImportStep) step() time.Duration {
	if imp.Step == "" {
		return DefaultStep
	}
	d, err := time.ParseDuration(imp.Step)
	if err != nil || d <= 0 {
		return DefaultStep
	}
	return d
}
