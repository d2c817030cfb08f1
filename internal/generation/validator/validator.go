// Package validator enforces the required-column contract on an ingested
// table and turns its rows into records with tracking identifiers.
package validator

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

// Validator checks tables against a fixed deployment column contract.
type Validator struct {
	idColumn string
	required []string
	logger   *slog.Logger
}

// New creates a Validator. The identifier column is always required.
func New(idColumn string, required []string) *Validator {
	req := append([]string(nil), required...)
	if !slices.Contains(req, idColumn) {
		req = append([]string{idColumn}, req...)
	}
	return &Validator{
		idColumn: idColumn,
		required: req,
		logger:   slog.Default().With("component", "row-validator"),
	}
}

// Validate returns one record per table row in source order. Missing
// required columns fail the whole table before any row is examined.
func (v *Validator) Validate(table *generation.Table) ([]generation.Record, error) {
	present := table.Columns()
	var missing []string
	for _, col := range v.required {
		if !slices.Contains(present, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &generation.MissingColumnsError{
			Required: append([]string(nil), v.required...),
			Missing:  missing,
			Present:  present,
		}
	}

	labels := make(map[string]string, len(present))
	for _, col := range present {
		labels[col] = HumanLabel(col)
	}

	records := make([]generation.Record, 0, table.Len())
	firstRow := make(map[string]int, table.Len())
	var duplicates []string
	for i := 0; i < table.Len(); i++ {
		rowNum := i + 1
		id, synthetic := TrackingID(table.Value(i, v.idColumn), rowNum)
		if synthetic {
			v.logger.Warn("row has no usable identifier, substituting",
				"row", rowNum,
				"column", v.idColumn,
				"tracking_id", id,
			)
		}
		if first, dup := firstRow[id]; dup {
			duplicates = append(duplicates, fmt.Sprintf("%s (rows %d and %d)", id, first, rowNum))
		} else {
			firstRow[id] = rowNum
		}

		fields := make([]generation.Field, 0, len(present)-1)
		for _, col := range present {
			if col == v.idColumn {
				continue
			}
			fields = append(fields, generation.Field{
				Column: col,
				Label:  labels[col],
				Value:  table.Value(i, col).Display(),
			})
		}
		records = append(records, generation.Record{
			Row:        rowNum,
			TrackingID: id,
			Synthetic:  synthetic,
			Fields:     fields,
		})
	}
	if len(duplicates) > 0 {
		return nil, apperrors.Newf(apperrors.ErrDuplicateIdentifier, 400,
			"identifiers must be unique per file: %s", strings.Join(duplicates, "; "))
	}
	return records, nil
}

// HumanLabel turns a column name such as DATA_EMISSAO into "Data Emissao".
func HumanLabel(column string) string {
	spaced := strings.Join(strings.Fields(strings.ReplaceAll(column, "_", " ")), " ")
	return cases.Title(language.Und).String(spaced)
}
