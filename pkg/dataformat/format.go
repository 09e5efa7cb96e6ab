// Package dataformat classifies uploaded dataset files and extracts bounded structural metadata from them.
package dataformat

import (
	"errors"
	"strings"
)

// FormatType is the closed set of dataset formats accepted by the store.
type FormatType string

const (
	FormatTSPLIB FormatType = "tsplib"
	FormatVRP    FormatType = "vrp"
	FormatJSON   FormatType = "json"
	FormatCSV    FormatType = "csv"
	FormatTXT    FormatType = "txt"
	FormatXML    FormatType = "xml"
	FormatXLSX   FormatType = "xlsx"
)

// Formats lists every valid format in declaration order.
var Formats = []FormatType{FormatTSPLIB, FormatVRP, FormatJSON, FormatCSV, FormatTXT, FormatXML, FormatXLSX}

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmptyFile         = errors.New("dataset file is empty")
	ErrFileTooLarge      = errors.New("dataset file exceeds size limit")
)

// Valid reports whether f belongs to the closed enum.
func (f FormatType) Valid() bool {
	for _, candidate := range Formats {
		if f == candidate {
			return true
		}
	}
	return false
}

// ParseFormatType normalises raw and reports whether it names a valid format.
func ParseFormatType(raw string) (FormatType, bool) {
	f := FormatType(strings.ToLower(strings.TrimSpace(raw)))
	return f, f.Valid()
}
