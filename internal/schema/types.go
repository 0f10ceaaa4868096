// Package schema describes the raw FlexiMart source files and the relational
// tables the cleaned entities are loaded into.
package schema

// FieldType represents the expected data type for a CSV field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInteger
	FieldPhone
	FieldEmail
)

// FieldSpec defines one expected column of a raw source file.
type FieldSpec struct {
	Name     string    // Column header name (matched case-insensitively)
	Type     FieldType // Expected data type
	Required bool      // Column must exist in the CSV header
}

// Source describes one raw input file.
type Source struct {
	Key        string // Unique identifier: "customers"
	FileName   string // Default file name inside the data directory
	Label      string // Display name
	FieldSpecs []FieldSpec
}

// Columns returns the expected header names in declaration order.
func (s Source) Columns() []string {
	cols := make([]string, len(s.FieldSpecs))
	for i, spec := range s.FieldSpecs {
		cols[i] = spec.Name
	}
	return cols
}

// RequiredColumns returns the names of columns that must be present.
func (s Source) RequiredColumns() []string {
	var cols []string
	for _, spec := range s.FieldSpecs {
		if spec.Required {
			cols = append(cols, spec.Name)
		}
	}
	return cols
}

// Table describes a destination table for the COPY protocol.
type Table struct {
	Name    string
	Columns []string
}
