package plugin

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is the metadata every extension exposes.
type Descriptor struct {
	Name        string  `yaml:"name"                  json:"name"`
	SystemName  string  `yaml:"system_name"           json:"system_name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string  `yaml:"version,omitempty"     json:"version,omitempty"`
	Authors     Authors `yaml:"author,omitempty"      json:"author,omitempty"`
}

// Authors holds the author field of a manifest, which may be a single
// string, a list of strings, or absent.
type Authors []string

// String joins the authors for display.
func (a Authors) String() string {
	return strings.Join(a, ", ")
}

// UnmarshalYAML accepts a scalar or a sequence.
func (a *Authors) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*a = nil
			return nil
		}
		*a = Authors{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return fmt.Errorf("author: %w", err)
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("author: expected string or list, got %v", node.Tag)
	}
}

// UnmarshalJSON accepts a string, an array of strings, or null.
func (a *Authors) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*a = nil
		} else {
			*a = Authors{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("author: expected string or list: %w", err)
	}
	*a = list
	return nil
}

// Manifest is the content of an extension's <SystemName>.yaml entry file.
// It is the universal descriptor used by the loader and the packaging tools.
type Manifest struct {
	Descriptor `yaml:",inline"`

	// Requires is a semver constraint on the host version, e.g. ">= 0.2.0".
	Requires string `yaml:"requires,omitempty" json:"requires,omitempty"`

	// Settings are default configuration values handed to the extension.
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// ParseManifest decodes a YAML manifest. It does not validate it; see the
// host's packaging.ValidateManifest for schema checks.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}
