package dataformat

import "strings"

// MetadataVersion is bumped whenever the Metadata document shape changes.
const MetadataVersion = 1

// Column kinds inferred from CSV samples.
const (
	ColumnNumeric = "numeric"
	ColumnText    = "text"
)

// Column describes one CSV column.
type Column struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Metadata is the bounded structural summary stored with every dataset.
// Only the fields relevant to Format are populated.
type Metadata struct {
	Version      int        `json:"version"`
	Format       FormatType `json:"format"`
	DegradedFrom FormatType `json:"degraded_from,omitempty"`
	LineCount    int        `json:"line_count"`
	ByteSize     int64      `json:"byte_size"`
	Truncated    bool       `json:"truncated,omitempty"`
	ProblemHint  string     `json:"problem_hint,omitempty"`

	// tsplib and vrp headers
	Name           string   `json:"name,omitempty"`
	Type           string   `json:"type,omitempty"`
	Comment        string   `json:"comment,omitempty"`
	Dimension      int      `json:"dimension,omitempty"`
	EdgeWeightType string   `json:"edge_weight_type,omitempty"`
	Capacity       int      `json:"capacity,omitempty"`
	Sections       []string `json:"sections,omitempty"`

	// json
	Keys         []string       `json:"keys,omitempty"`
	ArrayLength  *int           `json:"array_length,omitempty"`
	ArrayLengths map[string]int `json:"array_lengths,omitempty"`

	// csv
	Delimiter   string   `json:"delimiter,omitempty"`
	ColumnCount int      `json:"column_count,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
	SampleRows  int      `json:"sample_rows,omitempty"`
}

// FieldNames lists the names a problem parameter can be matched against: json keys,
// csv column names, tsplib header keys and section names, all lower case.
func (m Metadata) FieldNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(m.Keys)+len(m.Columns)+len(m.Sections))
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for _, key := range m.Keys {
		add(key)
	}
	for _, col := range m.Columns {
		add(col.Name)
	}
	for _, section := range m.Sections {
		add(section)
	}
	return names
}
