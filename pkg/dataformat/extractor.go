package dataformat

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultPrefixBytes bounds how much of a file is inspected.
const DefaultPrefixBytes = 64 * 1024

const csvSampleRows = 5

var sectionPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*_SECTION\b`)

var tsplibProblemHints = map[string]string{
	"TSP":  "tsp",
	"ATSP": "atsp",
	"SOP":  "sop",
	"HCP":  "hcp",
	"CVRP": "vrp",
	"VRP":  "vrp",
	"TOUR": "tsp",
}

// Extractor produces Metadata from a bounded content prefix.
type Extractor struct {
	limit  int
	logger *zap.Logger
}

// NewExtractor builds an extractor reading at most limit bytes.
func NewExtractor(limit int, logger *zap.Logger) *Extractor {
	if limit <= 0 {
		limit = DefaultPrefixBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{limit: limit, logger: logger}
}

// Limit returns the prefix size in bytes.
func (e *Extractor) Limit() int {
	return e.limit
}

// Extract never fails: malformed input degrades to line and byte counts.
func (e *Extractor) Extract(format FormatType, content []byte) (meta Metadata) {
	truncated := false
	if len(content) > e.limit {
		content = content[:e.limit]
		truncated = true
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("metadata extraction panicked", zap.String("format", string(format)), zap.Any("panic", r))
			meta = fallback(format, content, truncated)
			if format.Valid() && format != FormatTXT {
				meta.DegradedFrom = format
			}
		}
	}()

	switch format {
	case FormatTSPLIB, FormatVRP:
		return extractTSPLIB(format, content, truncated)
	case FormatJSON:
		return extractJSON(content, truncated)
	case FormatCSV:
		return extractCSV(content, truncated)
	default:
		return fallback(format, content, truncated)
	}
}

func fallback(format FormatType, content []byte, truncated bool) Metadata {
	if !format.Valid() {
		format = FormatTXT
	}
	return Metadata{
		Version:   MetadataVersion,
		Format:    format,
		LineCount: countLines(content),
		ByteSize:  int64(len(content)),
		Truncated: truncated,
	}
}

func degrade(from FormatType, content []byte, truncated bool) Metadata {
	meta := fallback(FormatTXT, content, truncated)
	meta.DegradedFrom = from
	return meta
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func extractTSPLIB(format FormatType, content []byte, truncated bool) Metadata {
	meta := fallback(format, content, truncated)
	inHeader := true
	seenSections := make(map[string]struct{})
	var dimensionSeen bool

	for _, rawLine := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if line == "EOF" {
			break
		}
		if section := sectionPattern.FindString(line); section != "" {
			inHeader = false
			if _, ok := seenSections[section]; !ok {
				seenSections[section] = struct{}{}
				meta.Sections = append(meta.Sections, section)
			}
			continue
		}
		if !inHeader {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		meta.Keys = append(meta.Keys, strings.ToLower(key))
		switch key {
		case "NAME":
			meta.Name = value
		case "TYPE":
			meta.Type = strings.ToUpper(value)
		case "COMMENT":
			if meta.Comment == "" {
				meta.Comment = value
			} else {
				meta.Comment += " " + value
			}
		case "DIMENSION":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				meta.Dimension = n
				dimensionSeen = true
			}
		case "EDGE_WEIGHT_TYPE":
			meta.EdgeWeightType = strings.ToUpper(value)
		case "CAPACITY":
			if n, err := strconv.Atoi(value); err == nil {
				meta.Capacity = n
			}
		}
	}

	if !dimensionSeen {
		return degrade(format, content, truncated)
	}

	if hint, ok := tsplibProblemHints[meta.Type]; ok {
		meta.ProblemHint = hint
	} else if format == FormatVRP {
		meta.ProblemHint = "vrp"
	} else {
		meta.ProblemHint = "tsp"
	}
	return meta
}

func extractJSON(content []byte, truncated bool) Metadata {
	meta := fallback(FormatJSON, content, truncated)
	dec := json.NewDecoder(bytes.NewReader(content))

	tok, err := dec.Token()
	if err != nil {
		return degrade(FormatJSON, content, truncated)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return meta
	}

	switch delim {
	case '[':
		n := 0
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				meta.Truncated = true
				break
			}
			n++
		}
		meta.ArrayLength = &n
	case '{':
		var typeHint, problemHint string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				meta.Truncated = true
				break
			}
			key, _ := keyTok.(string)
			meta.Keys = append(meta.Keys, key)

			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				meta.Truncated = true
				break
			}
			trimmed := bytes.TrimSpace(raw)
			switch {
			case len(trimmed) > 0 && trimmed[0] == '[':
				var items []json.RawMessage
				if json.Unmarshal(trimmed, &items) == nil {
					if meta.ArrayLengths == nil {
						meta.ArrayLengths = make(map[string]int)
					}
					meta.ArrayLengths[key] = len(items)
				}
			case len(trimmed) > 0 && trimmed[0] == '"':
				var s string
				if json.Unmarshal(trimmed, &s) == nil {
					switch strings.ToLower(key) {
					case "problem_type":
						problemHint = s
					case "type":
						typeHint = s
					}
				}
			}
		}
		if problemHint == "" {
			problemHint = typeHint
		}
		meta.ProblemHint = strings.ToLower(strings.TrimSpace(problemHint))
	}
	return meta
}

func extractCSV(content []byte, truncated bool) Metadata {
	body := content
	if truncated {
		if idx := bytes.LastIndexByte(body, '\n'); idx >= 0 {
			body = body[:idx+1]
		}
	}

	delim := detectDelimiter(body)
	reader := csv.NewReader(bytes.NewReader(body))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil || len(header) == 0 {
		return degrade(FormatCSV, content, truncated)
	}

	rows := make([][]string, 0, csvSampleRows)
	for len(rows) < csvSampleRows {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rows = append(rows, record)
	}

	meta := fallback(FormatCSV, content, truncated)
	meta.Delimiter = string(delim)
	meta.ColumnCount = len(header)
	meta.SampleRows = len(rows)
	meta.Columns = make([]Column, len(header))
	for i, name := range header {
		meta.Columns[i] = Column{
			Name: strings.TrimPrefix(strings.TrimSpace(name), "\ufeff"),
			Kind: inferKind(rows, i),
		}
	}
	return meta
}

func detectDelimiter(content []byte) rune {
	lines := sampleLines(content, 1)
	if len(lines) == 0 {
		return ','
	}
	best, bestCount := byte(','), 0
	for _, d := range csvDelimiters {
		if c := bytes.Count(lines[0], []byte{d}); c > bestCount {
			best, bestCount = d, c
		}
	}
	return rune(best)
}

func inferKind(rows [][]string, col int) string {
	seen := false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return ColumnText
		}
		seen = true
	}
	if !seen {
		return ColumnText
	}
	return ColumnNumeric
}
