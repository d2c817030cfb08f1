// Package ingest turns uploaded bytes into a generation.Table. It hides the
// format, text encoding, and delimiter ambiguity of operator-supplied files:
// delimited text is retried across encoding/delimiter candidates, and
// spreadsheets are retried across decoders.
package ingest

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

// Extensions accepted by Ingest.
var SupportedExtensions = []string{".csv", ".xls", ".xlsx"}

// Ingestor parses uploads. It holds no per-request state.
type Ingestor struct {
	logger *slog.Logger
}

func New() *Ingestor {
	return &Ingestor{
		logger: slog.Default().With("component", "ingestor"),
	}
}

// Ingest dispatches on the filename extension and returns a table with at
// least one data row.
func (i *Ingestor) Ingest(filename string, data []byte) (*generation.Table, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	var (
		table *generation.Table
		err   error
	)
	switch ext {
	case ".csv":
		table, err = i.parseDelimited(data)
	case ".xls", ".xlsx":
		table, err = i.parseSpreadsheet(data)
	default:
		return nil, apperrors.Newf(apperrors.ErrUnsupportedFormat, 400,
			"extension %q is not supported; use %s", ext, strings.Join(SupportedExtensions, ", "))
	}
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyTable, 400,
			"the table has a header (%s) but no data rows", strings.Join(table.Columns(), ", "))
	}
	return table, nil
}
