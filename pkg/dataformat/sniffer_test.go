package dataformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyByExtension(t *testing.T) {
	cases := map[string]FormatType{
		"berlin52.tsp":  FormatTSPLIB,
		"br17.ATSP":     FormatTSPLIB,
		"alb1000.hcp":   FormatTSPLIB,
		"esc07.sop":     FormatTSPLIB,
		"pr76.opt.tour": FormatTSPLIB,
		"A-n32-k5.vrp":  FormatVRP,
		"instance.json": FormatJSON,
		"cities.csv":    FormatCSV,
		"cities.tsv":    FormatCSV,
		"model.xml":     FormatXML,
		"sheet.xlsx":    FormatXLSX,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Classify(name, []byte("x"))
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestClassifyUnsupportedExtensions(t *testing.T) {
	for _, name := range []string{"photo.png", "archive.zip", "notes", "script.py", "data.xls", ".tsp.bak"} {
		_, err := Classify(name, []byte("NODE_COORD_SECTION"))
		require.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func TestClassifyTSPWithDemandsIsVRP(t *testing.T) {
	got, err := Classify("E-n13-k4.tsp", []byte("NAME : E-n13-k4\nTYPE : CVRP\nDIMENSION : 13\n"))
	require.NoError(t, err)
	require.Equal(t, FormatVRP, got)

	got, err = Classify("x.tsp", []byte("DIMENSION: 3\nDEMAND_SECTION\n1 0\n"))
	require.NoError(t, err)
	require.Equal(t, FormatVRP, got)
}

func TestClassifyAmbiguousContent(t *testing.T) {
	cases := []struct {
		name   string
		file   string
		header string
		want   FormatType
	}{
		{"tsplib keywords", "cities.txt", "NAME: x\nDIMENSION: 3\nNODE_COORD_SECTION\n1 0 0\n", FormatTSPLIB},
		{"vrp keywords", "fleet.dat", "DIMENSION: 3\nCAPACITY: 100\nNODE_COORD_SECTION\n", FormatVRP},
		{"comma rows", "table.txt", "a,b,c\n1,2,3\n4,5,6\n", FormatCSV},
		{"semicolon rows", "table.dat", "a;b\n1;2\n", FormatCSV},
		{"tab rows", "table.txt", "a\tb\n1\t2\n", FormatCSV},
		{"inconsistent delimiters", "notes.txt", "hello, world\nno commas here\n", FormatTXT},
		{"single line", "notes.txt", "a,b,c", FormatTXT},
		{"prose", "readme.txt", "just some words\nmore words\n", FormatTXT},
		{"binary", "blob.dat", "\x00\x01\x02\xff\xfe", FormatTXT},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(tc.file, []byte(tc.header))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSnifferCheckOrder(t *testing.T) {
	s := NewSniffer(10)

	_, err := s.Sniff("photo.png", 11, nil)
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = s.Sniff("photo.png", 0, nil)
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = s.Sniff("photo.png", 4, []byte("abcd"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	res, err := s.Sniff("a.csv", 8, []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, FormatCSV, res.Format)
	require.Equal(t, "text/csv", res.MIMEType)
}

func TestSnifferDefaultsCeiling(t *testing.T) {
	require.Equal(t, DefaultMaxFileSize, NewSniffer(0).MaxSize())
}

func TestDetectMIMEFallsBackToContent(t *testing.T) {
	require.Contains(t, DetectMIME(FormatTSPLIB, []byte("NAME: berlin52\n")), "text/plain")
	require.Equal(t, "application/json", DetectMIME(FormatJSON, []byte("{}")))
}

func TestParseFormatType(t *testing.T) {
	f, ok := ParseFormatType(" TSPLIB ")
	require.True(t, ok)
	require.Equal(t, FormatTSPLIB, f)

	_, ok = ParseFormatType("parquet")
	require.False(t, ok)
}
