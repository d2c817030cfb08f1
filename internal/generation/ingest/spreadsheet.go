package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

type sheetDecoder struct {
	name   string
	decode func([]byte) ([][]string, error)
}

// The extension does not say which writer produced a workbook, so every
// decoder is tried: the OOXML reader first, the BIFF reader second.
var spreadsheetDecoders = []sheetDecoder{
	{name: "xlsx", decode: decodeXLSX},
	{name: "xls", decode: decodeXLS},
}

func (i *Ingestor) parseSpreadsheet(data []byte) (*generation.Table, error) {
	var errs []error
	for _, d := range spreadsheetDecoders {
		grid, err := d.decode(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
			i.logger.Debug("spreadsheet decoder rejected", "decoder", d.name, "error", err)
			continue
		}
		i.logger.Debug("spreadsheet decoder accepted", "decoder", d.name, "rows", len(grid))
		return tableFromGrid(grid)
	}
	return nil, apperrors.Newf(apperrors.ErrUnreadableSpreadsheet, 400,
		"the file could not be read as xlsx or xls: %v", errors.Join(errs...))
}

// tableFromGrid uses the first non-empty row as the header. Cells beyond
// the header width get unnamed columns. Blank rows after the last row with
// content are sheet padding and dropped; blank rows between data rows stay.
func tableFromGrid(grid [][]string) (*generation.Table, error) {
	start := -1
	for idx, row := range grid {
		if !blankRow(row) {
			start = idx
			break
		}
	}
	if start < 0 {
		return nil, apperrors.New(apperrors.ErrEmptyTable, 400, "the first sheet has no cells")
	}
	header := grid[start]
	records := grid[start+1:]
	for len(records) > 0 && blankRow(records[len(records)-1]) {
		records = records[:len(records)-1]
	}
	width := len(header)
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}
	if width > len(header) {
		header = append(append([]string(nil), header...), make([]string, width-len(header))...)
	}
	return generation.BuildTable(header, records)
}

func blankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

func decodeXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func decodeXLS(data []byte) (grid [][]string, err error) {
	// The BIFF reader panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			grid, err = nil, fmt.Errorf("corrupt workbook: %v", r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}
	grid = make([][]string, 0, int(sheet.MaxRow)+1)
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
