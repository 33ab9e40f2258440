// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("template not found")

// LoadRegistry reads a registry file. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON. YAML documents are normalized
// through JSON so both formats yield the same value types (float64 numbers,
// map[string]interface{} objects).
func LoadRegistry(path string) (*FormRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes registry content. ext selects the format (".yaml", ".yml"
// or anything else for JSON).
func Parse(data []byte, ext string) (*FormRegistry, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml registry: %w", err)
		}
		normalized, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("normalize yaml registry: %w", err)
		}
		data = normalized
	}

	var reg FormRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return &reg, nil
}

// SaveRegistry writes reg as indented JSON or YAML depending on the
// extension of path.
func SaveRegistry(path string, reg *FormRegistry) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(reg.asMap())
	default:
		data, err = json.MarshalIndent(reg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Find returns the template with the given id.
func (r *FormRegistry) Find(id string) (*Template, error) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			t := r.Templates[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

// IDs returns the template ids in sorted order.
func (r *FormRegistry) IDs() []string {
	ids := make([]string, 0, len(r.Templates))
	for _, t := range r.Templates {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

// Check reports structural problems: missing ids, duplicate ids, unknown
// kinds and missing submit paths. Schema compilation is left to callers.
func (r *FormRegistry) Check() []string {
	var problems []string
	seen := make(map[string]bool, len(r.Templates))
	for i, t := range r.Templates {
		if t.ID == "" {
			problems = append(problems, fmt.Sprintf("templates[%d]: id is required", i))
			continue
		}
		if seen[t.ID] {
			problems = append(problems, fmt.Sprintf("%s: duplicate id", t.ID))
		}
		seen[t.ID] = true

		if t.Kind != KindInspection && t.Kind != KindReport {
			problems = append(problems, fmt.Sprintf("%s: unknown kind %q", t.ID, t.Kind))
		}
		if !strings.HasPrefix(t.SubmitPath, "/") {
			problems = append(problems, fmt.Sprintf("%s: submitPath must start with /", t.ID))
		}
		if t.Defaults == nil {
			problems = append(problems, fmt.Sprintf("%s: defaults document is required", t.ID))
		}
	}
	return problems
}

// asMap round-trips through JSON so YAML output uses the JSON field names.
func (r *FormRegistry) asMap() map[string]interface{} {
	data, _ := json.Marshal(r)
	var m map[string]interface{}
	_ = json.Unmarshal(data, &m)
	return m
}
