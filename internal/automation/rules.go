package automation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk YAML layout of the trigger rules.
//
//	state_changes:
//	  - name: dome-closed-alarm
//	    device: dome
//	    mask: 0x0f
//	    value: 0x02
//	    action:
//	      notify: night-operator
//	value_changes:
//	  - device: ccd0
//	    value: temperature
//	    cadency: 60
//	    action:
//	      record: true
type RuleFile struct {
	StateChanges []StateRule `yaml:"state_changes"`
	ValueChanges []ValueRule `yaml:"value_changes"`
}

// StateRule is one state_changes entry.
type StateRule struct {
	Name   string     `yaml:"name"`
	Device string     `yaml:"device"`
	Type   string     `yaml:"type"`
	Mask   uint32     `yaml:"mask"`
	Value  uint32     `yaml:"value"`
	Action ActionRule `yaml:"action"`
}

// ValueRule is one value_changes entry.
type ValueRule struct {
	Name    string     `yaml:"name"`
	Device  string     `yaml:"device"`
	Value   string     `yaml:"value"`
	Cadency Seconds    `yaml:"cadency"`
	Action  ActionRule `yaml:"action"`
}

// ActionRule selects exactly one action.
type ActionRule struct {
	// command: queue a device command
	Command string `yaml:"command"`
	Device  string `yaml:"device"`

	// spawn: run a program
	Spawn string   `yaml:"spawn"`
	Args  []string `yaml:"args"`

	// notify: publish a notification
	Notify  string `yaml:"notify"`
	Subject string `yaml:"subject"`

	// record: write the value to the telemetry sink
	Record bool `yaml:"record"`
}

// Seconds is a duration written either as a number of seconds (60, 0.5)
// or as a Go duration string ("1m30s").
type Seconds time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: cadency must be a scalar", node.Line)
	}
	if f, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*s = Seconds(time.Duration(f * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid cadency %q", node.Line, node.Value)
	}
	*s = Seconds(d)
	return nil
}

// RuleSet is a validated, ready-to-load list of triggers.
type RuleSet struct {
	States []*StateChangeTrigger
	Values []*ValueChangeTrigger
}

// Len returns the total number of triggers.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.States) + len(rs.Values)
}

// LoadRules reads and validates a rule file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the gateway config
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	rs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// ParseRules decodes YAML rule data, rejecting unknown fields, and builds
// a RuleSet. An empty document yields an empty set.
func ParseRules(data []byte) (*RuleSet, error) {
	var file RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	return Build(file)
}

// Build validates a RuleFile and converts it into triggers.
func Build(file RuleFile) (*RuleSet, error) {
	rs := &RuleSet{}

	for i, r := range file.StateChanges {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("state_changes[%d]", i)
		}
		if err := ValidateStateRule(r); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		action, err := buildAction(r.Action, false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rs.States = append(rs.States, &StateChangeTrigger{
			Name:       name,
			DeviceName: r.Device,
			DeviceType: r.Type,
			Mask:       r.Mask,
			Value:      r.Value,
			Action:     action,
		})
	}

	for i, r := range file.ValueChanges {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("value_changes[%d]", i)
		}
		if err := ValidateValueRule(r); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		action, err := buildAction(r.Action, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rs.Values = append(rs.Values, &ValueChangeTrigger{
			Name:       name,
			DeviceName: r.Device,
			ValueName:  r.Value,
			Cadency:    time.Duration(r.Cadency),
			Action:     action,
		})
	}

	return rs, nil
}
