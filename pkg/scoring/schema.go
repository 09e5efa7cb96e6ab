package scoring

import (
	"encoding/json"
	"sort"
	"strings"
)

// SchemaTypeProblem marks a repository config describing a problem (as opposed to an optimizer).
const SchemaTypeProblem = "problem"

// Schema is the subset of a repository's problem_config that scoring relies on.
type Schema struct {
	Type            string                     `json:"type"`
	ProblemName     string                     `json:"problem_name,omitempty"`
	ProblemType     string                     `json:"problem_type,omitempty"`
	EntryPoint      string                     `json:"entry_point,omitempty"`
	ClassName       string                     `json:"class_name,omitempty"`
	AcceptedFormats []string                   `json:"accepted_formats,omitempty"`
	Parameters      map[string]json.RawMessage `json:"parameters,omitempty"`
	DefaultParams   map[string]json.RawMessage `json:"default_params,omitempty"`
}

// ParseSchema decodes a raw problem_config document.
func ParseSchema(raw []byte) (*Schema, error) {
	var schema Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// IsProblem reports whether the schema describes a problem repository.
func (s *Schema) IsProblem() bool {
	return s != nil && strings.EqualFold(strings.TrimSpace(s.Type), SchemaTypeProblem)
}

// DeclaredProblemType prefers problem_type over problem_name, lower cased.
func (s *Schema) DeclaredProblemType() string {
	if s == nil {
		return ""
	}
	if pt := strings.TrimSpace(s.ProblemType); pt != "" {
		return strings.ToLower(pt)
	}
	return strings.ToLower(strings.TrimSpace(s.ProblemName))
}

// ParameterNames merges declared and default parameter names, lower cased and sorted.
func (s *Schema) ParameterNames() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(s.Parameters)+len(s.DefaultParams))
	for _, group := range []map[string]json.RawMessage{s.Parameters, s.DefaultParams} {
		for name := range group {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
