// Package source reads import rows from CSV or JSON files.
//
// CSV input is cleaned the way spreadsheet exports need: a leading UTF-8 BOM
// is dropped, invalid UTF-8 is replaced with U+FFFD, fully blank lines are
// skipped, and the first non-blank record is the header. Every other record
// becomes a row keyed by header name.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/docimport/internal/core"
)

// Format names an input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrNoHeader is returned for CSV input without a header record.
var ErrNoHeader = errors.New("csv has no header row")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FormatFromPath picks a format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	default:
		return FormatJSON
	}
}

// ReadRows decodes all rows from r.
func ReadRows(r io.Reader, format Format) ([]core.Row, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatJSON:
		return ReadJSON(r)
	default:
		return nil, fmt.Errorf("unsupported row format %q", format)
	}
}

// ReadJSON decodes a JSON array of objects. Numbers are kept as json.Number.
func ReadJSON(r io.Reader) ([]core.Row, error) {
	dec := json.NewDecoder(skipBOM(r))
	dec.UseNumber()

	var rows []core.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if rows == nil {
		rows = []core.Row{}
	}
	return rows, nil
}

// ReadCSV decodes comma-separated rows with a header record.
func ReadCSV(r io.Reader) ([]core.Row, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var header []string
	rows := []core.Row{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}

		if header == nil {
			header = make([]string, len(record))
			for i, h := range record {
				header[i] = strings.TrimSpace(strings.ToValidUTF8(h, "�"))
			}
			continue
		}

		row := make(core.Row, len(header))
		for i, name := range header {
			if name == "" || i >= len(record) {
				continue
			}
			if _, dup := row[name]; dup {
				continue
			}
			row[name] = strings.ToValidUTF8(record[i], "�")
		}
		rows = append(rows, row)
	}

	if header == nil {
		return nil, ErrNoHeader
	}
	return rows, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
