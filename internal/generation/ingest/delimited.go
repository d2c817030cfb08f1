package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidate is one (encoding, delimiter) interpretation of delimited text.
type candidate struct {
	encoding  string
	decode    func([]byte) ([]byte, error)
	delimiter rune
}

// delimitedCandidates are tried in order; the first that yields more than
// one column wins.
var delimitedCandidates = []candidate{
	{encoding: "utf-8", decode: decodeUTF8, delimiter: ','},
	{encoding: "utf-8", decode: decodeUTF8, delimiter: ';'},
	{encoding: "windows-1252", decode: decodeSingleByte, delimiter: ','},
	{encoding: "windows-1252", decode: decodeSingleByte, delimiter: ';'},
}

func (i *Ingestor) parseDelimited(data []byte) (*generation.Table, error) {
	var lastErr error
	for _, c := range delimitedCandidates {
		table, err := parseCandidate(data, c)
		if err != nil {
			lastErr = fmt.Errorf("%s with %q: %w", c.encoding, c.delimiter, err)
			i.logger.Debug("delimited candidate rejected", "encoding", c.encoding, "delimiter", string(c.delimiter), "error", err)
			continue
		}
		i.logger.Debug("delimited candidate accepted",
			"encoding", c.encoding,
			"delimiter", string(c.delimiter),
			"columns", len(table.Columns()),
			"rows", table.Len(),
		)
		return table, nil
	}
	return nil, apperrors.Newf(apperrors.ErrMalformedTable, 400,
		"could not split the file into more than one column with comma or semicolon in UTF-8 or Latin-1 (last error: %v)", lastErr)
}

func parseCandidate(data []byte, c candidate) (*generation.Table, error) {
	text, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	header, records, err := readDelimited(normalizeLineEndings(text), c.delimiter)
	if err != nil {
		return nil, err
	}
	if len(header) <= 1 {
		return nil, fmt.Errorf("parsed %d column(s)", len(header))
	}
	return generation.BuildTable(header, records)
}

func readDelimited(text []byte, delimiter rune) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("file is empty")
		}
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading records: %w", err)
	}
	return header, records, nil
}

// normalizeLineEndings folds CRLF and bare CR into LF.
func normalizeLineEndings(text []byte) []byte {
	text = bytes.ReplaceAll(text, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(text, []byte("\r"), []byte("\n"))
}

func decodeUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid utf-8 at byte %d", invalidUTF8Offset(data))
	}
	return data, nil
}

func invalidUTF8Offset(data []byte) int {
	for off := 0; off < len(data); {
		r, size := utf8.DecodeRune(data[off:])
		if r == utf8.RuneError && size <= 1 {
			return off
		}
		off += size
	}
	return len(data)
}

// decodeSingleByte reads Windows-1252, the superset of Latin-1 that desktop
// spreadsheet tools export.
func decodeSingleByte(data []byte) ([]byte, error) {
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding windows-1252: %w", err)
	}
	return out, nil
}
