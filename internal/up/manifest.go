// Package up implements the UP executor (spec.md §4.2): it walks a parsed
// manifest's up: list in declaration order, drives one backend per step,
// accumulates their contributions into an envcache.Builder, and commits the
// result through ENVCACHE.
package up

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"omni/internal/errs"
)

// knownKeyedTools is the set of step kinds spec.md §6's grammar names
// explicitly. Anything else under a { name: spec } step is
// rejected with a C1xx config error rather than silently accepted, so a
// typo in a manifest surfaces immediately instead of at runtime.
var knownKeyedTools = map[string]bool{
	"python": true, "go": true, "ruby": true, "node": true, "rust": true,
	"helm": true, "terraform": true,
	"cargo-install": true, "go-install": true,
	"github-release": true, "homebrew": true,
}

// ManifestFileName is the project manifest omni looks for at a work
// directory's root: a dotfile named ".omni.yaml", holding (among other
// sections this package doesn't parse) the up: list ParseManifest reads.
const ManifestFileName = ".omni.yaml"

// Manifest is one parsed project configuration's up: list.
type Manifest struct {
	Steps []StepNode
}

// StepNode is one parsed, still-untyped step; backend.Configure turns it
// into a concrete backend instance. Keeping this as a thin wrapper around
// the raw yaml.Node (rather than eagerly decoding into a union struct)
// lets each backend's Configure report its own file/line-scoped
// ConfigError via node.Line/node.Column.
type StepNode struct {
	// Kind is "python", "go", "custom", "env", "github-release", etc.
	Kind string
	// Node is the step's value: a scalar (bare tool name), the tool's
	// version-spec node ({tool: spec}), or the custom/env node's body.
	Node *yaml.Node
	Line int
}

// ParseManifest decodes the `up:` sequence from raw YAML bytes into a
// Manifest of still-untyped steps, per spec.md §6's abstract grammar:
//
//	up := [ step, … ]
//	step := scalar_tool | { tool_name: version_spec }
//	      | { custom: custom_step } | { env: [ env_operation, … ] }
func ParseManifest(data []byte) (*Manifest, error) {
	var root struct {
		Up []yaml.Node `yaml:"up"`
	}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &errs.ConfigError{Code: "C101", Key: "up", Err: fmt.Errorf("parse manifest: %w", err)}
	}

	m := &Manifest{}
	for i := range root.Up {
		node := &root.Up[i]
		step, err := parseStepNode(node)
		if err != nil {
			return nil, err
		}
		m.Steps = append(m.Steps, step)
	}
	return m, nil
}

func parseStepNode(node *yaml.Node) (StepNode, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return StepNode{Kind: node.Value, Node: node, Line: node.Line}, nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return StepNode{}, &errs.ConfigError{
				Code: "C102", Line: node.Line,
				Err: fmt.Errorf("up step must be a single-key mapping, got %d keys", len(node.Content)/2),
			}
		}
		key := node.Content[0].Value
		valueNode := node.Content[1]

		if key == "custom" || key == "env" {
			return StepNode{Kind: key, Node: valueNode, Line: node.Line}, nil
		}
		if !knownKeyedTools[key] {
			return StepNode{}, &errs.ConfigError{
				Code: "C103", Line: node.Line, Key: key,
				Err: fmt.Errorf("unknown up step kind %q", key),
			}
		}
		return StepNode{Kind: key, Node: valueNode, Line: node.Line}, nil

	default:
		return StepNode{}, &errs.ConfigError{
			Code: "C104", Line: node.Line,
			Err: fmt.Errorf("up step must be a scalar or single-key mapping"),
		}
	}
}

// VersionSpec decodes the step's value node as a bare version spec string,
// accepting both `- python: "3.12"` and the bare scalar `- python` forms
// (the latter meaning "latest").
func (s StepNode) VersionSpec() (string, error) {
	if s.Node == nil {
		return "latest", nil
	}
	switch s.Node.Kind {
	case yaml.ScalarNode:
		if s.Node.Value == "" || s.Node.Value == s.Kind {
			return "latest", nil
		}
		return s.Node.Value, nil
	default:
		return "", &errs.ConfigError{
			Code: "C105", Line: s.Line, Key: s.Kind,
			Err: fmt.Errorf("expected a scalar version spec for %q", s.Kind),
		}
	}
}

// Decode unmarshals the step's value node into v, for backends with a
// richer configuration shape than a bare version spec (release-archive,
// language-package, custom, homebrew).
func (s StepNode) Decode(v any) error {
	if s.Node == nil {
		return &errs.ConfigError{Code: "C106", Line: s.Line, Key: s.Kind, Err: fmt.Errorf("step has no body to decode")}
	}
	if err := s.Node.Decode(v); err != nil {
		return &errs.ConfigError{Code: "C106", Line: s.Line, Key: s.Kind, Err: err}
	}
	return nil
}
