package core

// reader.go extracts raw source files into immutable RawRecords.
//
// The reader tolerates the usual export artifacts: a UTF-8 BOM, invalid UTF-8
// bytes, blank lines and preamble rows before the header. Extra columns are
// ignored. A header missing any expected column is a schema mismatch and
// fails the run; a row with fewer cells than the expected columns need is
// rejected as malformed without affecting its siblings.

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// MaxHeaderSearchRows limits how many leading rows are scanned for the header.
const MaxHeaderSearchRows = 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawRecord is one input row keyed by expected column name. It cannot be
// modified after extraction.
type RawRecord struct {
	source string
	line   int
	values map[string]string
}

// NewRawRecord builds a record from column values. Keys are lower-cased.
func NewRawRecord(source string, line int, values map[string]string) RawRecord {
	v := make(map[string]string, len(values))
	for k, val := range values {
		v[strings.ToLower(k)] = val
	}
	return RawRecord{source: source, line: line, values: v}
}

// Source returns the source key the record was read from.
func (r RawRecord) Source() string { return r.source }

// Line returns the 1-based line number of the record in its file.
func (r RawRecord) Line() int { return r.line }

// Get returns the cleaned value of a column, or "" when absent.
func (r RawRecord) Get(column string) string {
	return CleanCell(r.values[strings.ToLower(column)])
}

// Raw returns a copy of the original cell values.
func (r RawRecord) Raw() map[string]string {
	return maps.Clone(r.values)
}

// Extraction is the output of reading one source.
type Extraction struct {
	Source     string
	Records    []RawRecord
	Rejections []Rejection
}

// Processed is the number of data rows read, rejected or not.
func (e *Extraction) Processed() int {
	return len(e.Records) + len(e.Rejections)
}

// ExtractFile opens path and extracts it as src.
func ExtractFile(ctx context.Context, src schema.Source, path string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindMalformedInput, Source: src.Key, Err: fmt.Errorf("open %s: %w", path, err)}
	}
	defer f.Close()

	return Extract(ctx, src, f)
}

// Extract reads a CSV stream for src.
func Extract(ctx context.Context, src schema.Source, r io.Reader) (*Extraction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Kind: KindMalformedInput, Source: src.Key, Err: fmt.Errorf("read: %w", err)}
	}
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	out := &Extraction{Source: src.Key}
	required := src.RequiredColumns()

	var (
		header  HeaderIndex
		scanned int
		first   []string
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			if header == nil {
				return nil, &Error{Kind: KindMalformedInput, Source: src.Key, Line: parseErr.Line, Err: err}
			}
			out.Rejections = append(out.Rejections, Rejection{
				Source: src.Key,
				Line:   parseErr.Line,
				Reason: ReasonMalformedRow,
				Kind:   KindMalformedInput,
				Detail: parseErr.Err.Error(),
			})
			continue
		}
		if err != nil {
			return nil, &Error{Kind: KindMalformedInput, Source: src.Key, Err: err}
		}

		if isEmptyRow(row) {
			continue
		}
		line, _ := cr.FieldPos(0)

		if header == nil {
			if first == nil {
				first = row
			}
			scanned++
			idx := MakeHeaderIndex(row)
			if len(missingColumns(idx, required)) == 0 {
				header = idx
				continue
			}
			if scanned >= MaxHeaderSearchRows {
				break
			}
			continue
		}

		rec, rej := buildRecord(src, header, row, line)
		if rej != nil {
			out.Rejections = append(out.Rejections, *rej)
			continue
		}
		out.Records = append(out.Records, rec)
	}

	if header == nil {
		missing := required
		if first != nil {
			missing = missingColumns(MakeHeaderIndex(first), required)
		}
		return nil, &Error{
			Kind:   KindSchemaMismatch,
			Source: src.Key,
			Err:    fmt.Errorf("missing expected columns: %s", strings.Join(missing, ", ")),
		}
	}

	return out, nil
}

// buildRecord maps a data row onto the expected columns.
func buildRecord(src schema.Source, header HeaderIndex, row []string, line int) (RawRecord, *Rejection) {
	values := make(map[string]string, len(src.FieldSpecs))
	var short []string

	for _, spec := range src.FieldSpecs {
		pos, ok := header[spec.Name]
		if !ok {
			continue
		}
		if pos >= len(row) {
			short = append(short, spec.Name)
			continue
		}
		values[spec.Name] = row[pos]
	}

	if len(short) > 0 {
		raw := make(map[string]string, len(row))
		for i, cell := range row {
			raw[fmt.Sprintf("col_%d", i+1)] = cell
		}
		return RawRecord{}, &Rejection{
			Source: src.Key,
			Line:   line,
			Reason: ReasonMalformedRow,
			Kind:   KindMalformedInput,
			Detail: fmt.Sprintf("row has %d cells, missing %s", len(row), strings.Join(short, ", ")),
			Raw:    raw,
		}
	}

	return RawRecord{source: src.Key, line: line, values: values}, nil
}

func missingColumns(idx HeaderIndex, required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return slices.Clip(missing)
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
