package packaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/goatkit/prodmanager/pkg/plugin"
)

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "system_name"],
  "properties": {
    "name":        {"type": "string", "minLength": 1},
    "system_name": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
    "description": {"type": "string"},
    "version":     {"type": "string"},
    "author": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}},
        {"type": "null"}
      ]
    },
    "requires": {"type": "string"},
    "settings": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean"]}
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(manifestSchema)

// ValidateManifest checks an entry manifest against the manifest schema and
// parses it. Version and requires must be valid semver when present.
func ValidateManifest(data []byte) (plugin.Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return plugin.Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	if doc == nil {
		return plugin.Manifest{}, errors.New("invalid manifest: empty document")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return plugin.Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return plugin.Manifest{}, fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
	}

	m, err := plugin.ParseManifest(data)
	if err != nil {
		return plugin.Manifest{}, err
	}

	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return plugin.Manifest{}, fmt.Errorf("invalid manifest version %q: %w", m.Version, err)
		}
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return plugin.Manifest{}, fmt.Errorf("invalid manifest requires %q: %w", m.Requires, err)
		}
	}
	return m, nil
}
