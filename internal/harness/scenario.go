package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted exchange between two peers, "a" and "b",
// connected by an in-process pipe.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional CUE schema applied to both peers' stores.
	// Relative paths are resolved against the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Steps run in order. Local edits are sent immediately but nothing is
	// delivered until a sync step.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action.
type Step struct {
	// Op is one of create, update, rename, remove, gate, inject, sync.
	Op string `yaml:"op"`

	// Peer runs the step. Not used by sync.
	Peer string `yaml:"peer,omitempty"`

	// As names the uuid of a created entity for later steps (create).
	As string `yaml:"as,omitempty"`

	// Ref is an alias from an earlier create (update, rename, remove).
	Ref string `yaml:"ref,omitempty"`

	Collection string         `yaml:"collection,omitempty"`
	Name       string         `yaml:"name,omitempty"`
	Fields     map[string]any `yaml:"fields,omitempty"`
	Set        map[string]any `yaml:"set,omitempty"`
	Unset      []string       `yaml:"unset,omitempty"`

	// Enabled is the gate state (gate).
	Enabled *bool `yaml:"enabled,omitempty"`

	// Type and Strings describe a raw message sent by Peer (inject).
	// Strings are framed into the payload; Raw is used verbatim instead
	// when set.
	Type    string   `yaml:"type,omitempty"`
	Strings []string `yaml:"strings,omitempty"`
	Raw     string   `yaml:"raw,omitempty"`

	// ExpectError, when set, requires the local edit to fail with an
	// error containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpRename = "rename"
	OpRemove = "remove"
	OpGate   = "gate"
	OpInject = "inject"
	OpSync   = "sync"
)

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "converged": both peers hold the same entities
	// - "entity": an entity on Peer has the expected name and fields
	// - "absent": the entity Ref does not exist on Peer
	// - "count": Peer holds Count entities in Collection
	// - "delivered": the trace holds Count messages of MessageType
	Type string `yaml:"type"`

	Peer       string `yaml:"peer,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
	Collection string `yaml:"collection,omitempty"`

	// Name and Fields are the expected entity values (entity). Fields is a
	// subset match.
	Name   string         `yaml:"name,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	MessageType string `yaml:"message_type,omitempty"`
	// Outcome filters delivered messages (delivered).
	Outcome string `yaml:"outcome,omitempty"`
	Count   int    `yaml:"count"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertEntity    = "entity"
	AssertAbsent    = "absent"
	AssertCount     = "count"
	AssertDelivered = "delivered"
)

// Peer names.
const (
	PeerA = "a"
	PeerB = "b"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertConverged:
		case AssertEntity, AssertAbsent:
			if err := validatePeer(a.Peer); err != nil {
				return fmt.Errorf("assertion %d: %w", i+1, err)
			}
			if a.Ref == "" {
				return fmt.Errorf("assertion %d: ref is required", i+1)
			}
		case AssertCount:
			if err := validatePeer(a.Peer); err != nil {
				return fmt.Errorf("assertion %d: %w", i+1, err)
			}
		case AssertDelivered:
			if a.MessageType == "" {
				return fmt.Errorf("assertion %d: message_type is required", i+1)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i+1, a.Type)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Op == OpSync {
		return nil
	}
	if err := validatePeer(step.Peer); err != nil {
		return err
	}
	switch step.Op {
	case OpCreate:
		if step.Collection == "" || step.Name == "" {
			return fmt.Errorf("collection and name are required")
		}
	case OpUpdate, OpRemove:
		if step.Ref == "" {
			return fmt.Errorf("ref is required")
		}
	case OpRename:
		if step.Ref == "" || step.Name == "" {
			return fmt.Errorf("ref and name are required")
		}
	case OpGate:
		if step.Enabled == nil {
			return fmt.Errorf("enabled is required")
		}
	case OpInject:
		if _, err := parseMessageType(step.Type); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown op")
	}
	return nil
}

func validatePeer(p string) error {
	if p != PeerA && p != PeerB {
		return fmt.Errorf("peer must be %q or %q, got %q", PeerA, PeerB, p)
	}
	return nil
}
