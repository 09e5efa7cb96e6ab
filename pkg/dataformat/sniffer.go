package dataformat

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileSize is the platform upload ceiling.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

const csvSampleLines = 5

var extensionFormats = map[string]FormatType{
	".tsp":  FormatTSPLIB,
	".atsp": FormatTSPLIB,
	".hcp":  FormatTSPLIB,
	".sop":  FormatTSPLIB,
	".tour": FormatTSPLIB,
	".vrp":  FormatVRP,
	".json": FormatJSON,
	".csv":  FormatCSV,
	".tsv":  FormatCSV,
	".xml":  FormatXML,
	".xlsx": FormatXLSX,
}

// .txt and .dat are resolved from content.
var ambiguousExtensions = map[string]struct{}{
	".txt": {},
	".dat": {},
}

var preferredMIME = map[FormatType]string{
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
	FormatXML:  "application/xml",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var (
	cvrpTypePattern   = regexp.MustCompile(`(?m)^\s*TYPE\s*:\s*CVRP\b`)
	dimensionPattern  = regexp.MustCompile(`(?m)^\s*DIMENSION\s*:`)
	capacityPattern   = regexp.MustCompile(`(?m)^\s*CAPACITY\s*:`)
	csvDelimiters     = []byte{',', ';', '\t'}
	tsplibSectionKeys = [][]byte{[]byte("NODE_COORD_SECTION"), []byte("EDGE_WEIGHT_SECTION")}
)

// Result is the outcome of sniffing an upload.
type Result struct {
	Format   FormatType
	MIMEType string
}

// Sniffer validates upload size and classifies the content prefix.
type Sniffer struct {
	maxSize int64
}

// NewSniffer creates a sniffer enforcing maxSize bytes. Non-positive values use DefaultMaxFileSize.
func NewSniffer(maxSize int64) *Sniffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Sniffer{maxSize: maxSize}
}

// MaxSize returns the enforced ceiling.
func (s *Sniffer) MaxSize() int64 {
	return s.maxSize
}

// Sniff checks size before emptiness before the extension, then classifies header.
func (s *Sniffer) Sniff(filename string, size int64, header []byte) (Result, error) {
	if size > s.maxSize {
		return Result{}, ErrFileTooLarge
	}
	if size <= 0 || len(header) == 0 {
		return Result{}, ErrEmptyFile
	}
	format, err := Classify(filename, header)
	if err != nil {
		return Result{}, err
	}
	return Result{Format: format, MIMEType: DetectMIME(format, header)}, nil
}

// Classify maps filename and the content prefix to a format.
func Classify(filename string, header []byte) (FormatType, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if format, ok := extensionFormats[ext]; ok {
		if format == FormatTSPLIB && ext == ".tsp" && looksLikeVRP(header) {
			return FormatVRP, nil
		}
		return format, nil
	}
	if _, ok := ambiguousExtensions[ext]; ok {
		return classifyContent(header), nil
	}
	return "", ErrUnsupportedFormat
}

// DetectMIME prefers a canonical type for structured formats and falls back to content detection.
func DetectMIME(format FormatType, header []byte) string {
	if mime, ok := preferredMIME[format]; ok {
		return mime
	}
	return mimetype.Detect(header).String()
}

func looksLikeVRP(header []byte) bool {
	return cvrpTypePattern.Match(header) || bytes.Contains(header, []byte("DEMAND_SECTION"))
}

func classifyContent(header []byte) FormatType {
	if looksLikeTSPLIB(header) {
		if looksLikeVRP(header) || capacityPattern.Match(header) {
			return FormatVRP
		}
		return FormatTSPLIB
	}
	if looksLikeCSV(header) {
		return FormatCSV
	}
	return FormatTXT
}

func looksLikeTSPLIB(header []byte) bool {
	for _, key := range tsplibSectionKeys {
		if bytes.Contains(header, key) {
			return true
		}
	}
	return dimensionPattern.Match(header)
}

// looksLikeCSV requires at least two lines with the same non-zero count of one delimiter.
func looksLikeCSV(header []byte) bool {
	lines := sampleLines(header, csvSampleLines)
	if len(lines) < 2 {
		return false
	}
	for _, delim := range csvDelimiters {
		want := bytes.Count(lines[0], []byte{delim})
		if want == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if bytes.Count(line, []byte{delim}) != want {
				consistent = false
				break
			}
		}
		if consistent {
			return true
		}
	}
	return false
}

// sampleLines returns up to n non-blank complete lines. A trailing fragment is kept only when
// it is the sole line available.
func sampleLines(content []byte, n int) [][]byte {
	raw := bytes.Split(content, []byte{'\n'})
	if len(raw) > 1 && !bytes.HasSuffix(content, []byte{'\n'}) {
		raw = raw[:len(raw)-1]
	}
	lines := make([][]byte, 0, n)
	for _, line := range raw {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return lines
}
