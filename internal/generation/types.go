// Package generation defines the table, record, and diagnostic types shared
// by the row-to-document pipeline: an uploaded table is ingested into a
// Table, validated into Records, and each Record becomes one archived
// document.
package generation

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

// MissingPlaceholder is rendered in place of a missing cell value.
const MissingPlaceholder = "N/A"

// Kind tags the variant held by a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "missing"
	}
}

// Value is one table cell: text, number, or missing. Numbers keep the
// source text so display never reformats what the operator typed.
type Value struct {
	kind Kind
	raw  string
	num  float64
}

// Tokens treated as an empty cell, matching common spreadsheet exports.
var missingTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"#N/A": {},
	"#NA":  {},
	"<NA>": {},
	"NULL": {},
	"null": {},
	"NaN":  {},
	"nan":  {},
	"-NaN": {},
	"-nan": {},
	"None": {},
}

func Missing() Value { return Value{kind: KindMissing} }

func Text(s string) Value { return Value{kind: KindText, raw: s} }

func Number(raw string, n float64) Value { return Value{kind: KindNumber, raw: raw, num: n} }

// ParseValue classifies a raw cell. Surrounding whitespace is trimmed.
// Integers with leading zeros ("007") stay text so identifiers keep their
// padding.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if _, ok := missingTokens[s]; ok {
		return Missing()
	}
	if looksNumeric(s) {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return Number(s, n)
		}
	}
	return Text(s)
}

func looksNumeric(s string) bool {
	digits := strings.TrimLeft(s, "+-")
	if digits == "" {
		return false
	}
	if c := digits[0]; (c < '0' || c > '9') && c != '.' {
		return false
	}
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return false
	}
	if strings.Contains(s, ",") {
		// A decimal comma or thousands separator stays text.
		return false
	}
	return true
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

// String returns the source text, or "" for a missing value.
func (v Value) String() string { return v.raw }

// Float returns the numeric value when v is a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Display returns the text shown in a document.
func (v Value) Display() string {
	if v.kind == KindMissing {
		return MissingPlaceholder
	}
	return v.raw
}

// Row maps a column name to its cell.
type Row map[string]Value

// Table is an immutable parsed upload. Every row carries every column.
type Table struct {
	columns []string
	rows    []Row
}

// BuildTable trims header names and aligns each record to the header.
// Short records are padded with missing values; a record with more fields
// than the header is malformed. A record with no content is kept as an
// all-missing row so later rows keep their positions.
func BuildTable(header []string, records [][]string) (*Table, error) {
	columns := normalizeHeader(header)
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		if len(rec) > len(columns) {
			return nil, apperrors.Newf(apperrors.ErrMalformedTable, 400,
				"data line %d has %d fields, header has %d", i+1, len(rec), len(columns))
		}
		row := make(Row, len(columns))
		for j, col := range columns {
			if j < len(rec) {
				row[col] = ParseValue(rec[j])
			} else {
				row[col] = Missing()
			}
		}
		rows = append(rows, row)
	}
	return &Table{columns: columns, rows: rows}, nil
}

// normalizeHeader trims names and disambiguates repeats as NAME.1, NAME.2.
// Blank names become Unnamed: <index>.
func normalizeHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		columns[i] = name
	}
	return columns
}

// Columns returns a copy of the header in source order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of the i-th data row (0-based).
func (t *Table) Row(i int) Row { return maps.Clone(t.rows[i]) }

// Value returns the cell of the i-th data row in col, or a missing value
// for an unknown column.
func (t *Table) Value(i int, col string) Value {
	v, ok := t.rows[i][col]
	if !ok {
		return Missing()
	}
	return v
}

// Field is one labelled value of a Record, in header order.
type Field struct {
	Column string
	Label  string
	Value  string
}

// Record is a validated row ready for rendering.
type Record struct {
	// Row is the 1-based position of the row among the data rows.
	Row        int
	TrackingID string
	// Synthetic is set when TrackingID was substituted for an unusable
	// source identifier.
	Synthetic bool
	Fields    []Field
}

// Pipeline stages a row can fail in.
const (
	StageEmbed   = "embed"
	StageRender  = "render"
	StageArchive = "archive"
)

// RowError attributes a per-row failure to its row number and identifier.
type RowError struct {
	Row        int
	TrackingID string
	Stage      string
	Err        error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (id %s): %s failed: %v", e.Row, e.TrackingID, e.Stage, e.Err)
}

func (e *RowError) Unwrap() []error {
	return []error{apperrors.ErrRenderFailure, e.Err}
}

// MissingColumnsError reports required columns absent from the table.
type MissingColumnsError struct {
	Required []string
	Missing  []string
	Present  []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns [%s]; required: [%s]; found: [%s]",
		strings.Join(e.Missing, ", "),
		strings.Join(e.Required, ", "),
		strings.Join(e.Present, ", "),
	)
}

func (e *MissingColumnsError) Unwrap() error {
	return apperrors.ErrMissingColumns
}

// BatchEvent is the analytics payload emitted once per processed upload.
type BatchEvent struct {
	BatchID      string    `json:"batch_id"`
	Filename     string    `json:"filename"`
	Rows         int       `json:"rows"`
	Archived     int       `json:"archived"`
	Failed       int       `json:"failed"`
	Policy       string    `json:"policy"`
	DurationMs   int64     `json:"duration_ms"`
	ArchiveBytes int64     `json:"archive_bytes"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	At           time.Time `json:"at"`
}

// Batch outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomePartial      = "partial"
	OutcomeInputError   = "input_error"
	OutcomeRenderFailed = "render_failed"
)
