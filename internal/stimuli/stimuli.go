// Package stimuli loads the per-trial input rows of an experiment and resolves
// the picture and audio files they reference.
package stimuli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// DefaultBase is where stimuli are served from when no other base is configured.
const DefaultBase = "./stimuli/"

// SoundCheck is the audio file every session preloads for the audio check.
const SoundCheck = "sound_check.mp3"

// Row is one trial's input data. Values are string, int or bool. Rows are
// treated as immutable once loaded.
type Row map[string]any

// Resolver maps a stimulus file name to the URL the browser loads it from.
type Resolver func(name string) string

// URLResolver prefixes file names with base.
func URLResolver(base string) Resolver {
	if base == "" {
		base = DefaultBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return func(name string) string {
		return base + name
	}
}

// StimulusName returns the last path segment of a stimulus URL.
func StimulusName(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// IsStimulusColumn reports whether a column holds a stimulus file name.
func IsStimulusColumn(name string) bool {
	return strings.HasPrefix(name, "picture") || name == "audio"
}

// Load reads and parses a data file from disk.
func Load(path string, resolve Resolver) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return Parse(f, resolve)
}

// Parse reads comma-separated data with a header row. Header and values are
// lower-cased. pictureN and audio columns are resolved to URLs, numeric values
// become ints and y/n become booleans. Parsing stops at the first row whose
// field count differs from the header's.
func Parse(r io.Reader, resolve Resolver) ([]Row, error) {
	if resolve == nil {
		resolve = URLResolver(DefaultBase)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	headings := make([]string, len(header))
	for i, h := range header {
		headings[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read row %d: %w", len(rows)+1, err)
		}
		if len(record) != len(headings) {
			break
		}
		row := make(Row, len(headings))
		for j, column := range headings {
			row[column] = convert(column, strings.ToLower(record[j]), resolve)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func convert(column, value string, resolve Resolver) any {
	if IsStimulusColumn(column) {
		return resolve(value)
	}
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f)
		}
	}
	switch trimmed {
	case "y":
		return true
	case "n":
		return false
	}
	return value
}

// String returns a field's value formatted as text, or "" when absent.
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// PictureFields lists the row's pictureN columns in numeric order.
func (r Row) PictureFields() []string {
	var fields []string
	for k := range r {
		if strings.HasPrefix(k, "picture") {
			fields = append(fields, k)
		}
	}
	sort.Slice(fields, func(i, j int) bool {
		ni, ei := strconv.Atoi(strings.TrimPrefix(fields[i], "picture"))
		nj, ej := strconv.Atoi(strings.TrimPrefix(fields[j], "picture"))
		if ei == nil && ej == nil && ni != nj {
			return ni < nj
		}
		return fields[i] < fields[j]
	})
	return fields
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
