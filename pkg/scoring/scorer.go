// Package scoring computes how well a dataset fits a problem repository's declared schema.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rastion/rastion-datasets/pkg/dataformat"
)

// DetailVersion versions the Detail document persisted with each score.
const DetailVersion = 1

// ReasonNoSchema is reported when the repository publishes no usable problem schema.
const ReasonNoSchema = "no declared schema"

const minSharedToken = 3

// Weights is the partial credit for each rule.
type Weights struct {
	ProblemType float64 `json:"problem_type"`
	Format      float64 `json:"format"`
	Parameter   float64 `json:"parameter"`
}

// DefaultWeights returns the 0.5 / 0.3 / 0.2 policy.
func DefaultWeights() Weights {
	return Weights{ProblemType: 0.5, Format: 0.3, Parameter: 0.2}
}

// Input is what the scorer knows about a dataset.
type Input struct {
	Format      dataformat.FormatType
	ProblemHint string
	FieldNames  []string
}

// InputFromMetadata builds an Input, letting an explicit hint override the extracted one.
func InputFromMetadata(format dataformat.FormatType, hint string, meta dataformat.Metadata) Input {
	if strings.TrimSpace(hint) == "" {
		hint = meta.ProblemHint
	}
	return Input{Format: format, ProblemHint: hint, FieldNames: meta.FieldNames()}
}

// ParameterMatch names a metadata field matched to a declared parameter.
type ParameterMatch struct {
	Field     string `json:"field"`
	Parameter string `json:"parameter"`
	Token     string `json:"token"`
}

// Detail explains a score.
type Detail struct {
	Version            int              `json:"version"`
	MatchedProblemType bool             `json:"matched_problem_type"`
	MatchedFormat      bool             `json:"matched_format"`
	MatchedParameters  []ParameterMatch `json:"matched_parameters"`
	Reasons            []string         `json:"reasons"`
	Weights            Weights          `json:"weights"`
}

// Scorer applies a weight policy. It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer sanitises w: negative or NaN weights count as zero.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: Weights{
		ProblemType: sanitize(w.ProblemType),
		Format:      sanitize(w.Format),
		Parameter:   sanitize(w.Parameter),
	}}
}

// Weights returns the effective policy.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// ScoreRaw parses raw before scoring; unparseable documents score zero.
func (s *Scorer) ScoreRaw(in Input, raw []byte) (float64, Detail) {
	if len(raw) == 0 {
		return s.Score(in, nil)
	}
	schema, err := ParseSchema(raw)
	if err != nil {
		return s.Score(in, nil)
	}
	return s.Score(in, schema)
}

// Score returns a value in [0,1] rounded to two decimals, plus its explanation.
func (s *Scorer) Score(in Input, schema *Schema) (float64, Detail) {
	detail := Detail{
		Version:           DetailVersion,
		MatchedParameters: []ParameterMatch{},
		Reasons:           []string{},
		Weights:           s.weights,
	}
	if !schema.IsProblem() {
		detail.Reasons = append(detail.Reasons, ReasonNoSchema)
		return 0, detail
	}

	total := 0.0

	declared := schema.DeclaredProblemType()
	hint := strings.ToLower(strings.TrimSpace(in.ProblemHint))
	switch {
	case declared == "":
		detail.Reasons = append(detail.Reasons, "repository declares no problem type")
	case hint == "":
		detail.Reasons = append(detail.Reasons, "dataset has no problem hint")
	case hint == declared:
		detail.MatchedProblemType = true
		total += s.weights.ProblemType
		detail.Reasons = append(detail.Reasons, fmt.Sprintf("problem type %q matches", declared))
	default:
		detail.Reasons = append(detail.Reasons, fmt.Sprintf("problem type %q does not match dataset hint %q", declared, hint))
	}

	accepted := normalizeAll(schema.AcceptedFormats)
	format := strings.ToLower(string(in.Format))
	switch {
	case len(accepted) == 0:
		detail.Reasons = append(detail.Reasons, "repository declares no accepted formats")
	case contains(accepted, format):
		detail.MatchedFormat = true
		total += s.weights.Format
		detail.Reasons = append(detail.Reasons, fmt.Sprintf("format %q accepted", format))
	default:
		detail.Reasons = append(detail.Reasons, fmt.Sprintf("format %q not in accepted formats [%s]", format, strings.Join(accepted, ", ")))
	}

	detail.MatchedParameters = matchParameters(in.FieldNames, schema.ParameterNames())
	if len(detail.MatchedParameters) > 0 {
		total += s.weights.Parameter
		for _, m := range detail.MatchedParameters {
			detail.Reasons = append(detail.Reasons, fmt.Sprintf("field %q matches parameter %q on %q", m.Field, m.Parameter, m.Token))
		}
	} else {
		detail.Reasons = append(detail.Reasons, "no metadata field matches a declared parameter")
	}

	return round2(clamp(total)), detail
}

func matchParameters(fields, params []string) []ParameterMatch {
	fields = normalizeAll(fields)
	matches := make([]ParameterMatch, 0)
	for _, param := range params {
		for _, field := range fields {
			if token, ok := matchName(field, param); ok {
				matches = append(matches, ParameterMatch{Field: field, Parameter: param, Token: token})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Parameter != matches[j].Parameter {
			return matches[i].Parameter < matches[j].Parameter
		}
		return matches[i].Field < matches[j].Field
	})
	return matches
}

// matchName reports containment either way, or the smallest shared "_" token of at least three characters.
func matchName(field, param string) (string, bool) {
	if field == "" || param == "" {
		return "", false
	}
	if strings.Contains(field, param) {
		return param, true
	}
	if strings.Contains(param, field) {
		return field, true
	}
	paramTokens := make(map[string]struct{})
	for _, tok := range strings.Split(param, "_") {
		if len(tok) >= minSharedToken {
			paramTokens[tok] = struct{}{}
		}
	}
	var shared []string
	for _, tok := range strings.Split(field, "_") {
		if _, ok := paramTokens[tok]; ok {
			shared = append(shared, tok)
		}
	}
	if len(shared) == 0 {
		return "", false
	}
	sort.Strings(shared)
	return shared[0], true
}

func normalizeAll(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func contains(values []string, target string) bool {
	i := sort.SearchStrings(values, target)
	return i < len(values) && values[i] == target
}

func sanitize(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
