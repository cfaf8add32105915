// Package tabular turns uploaded spreadsheets into header-keyed rows.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"

	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingHeader     = errors.New("missing header")
	ErrTooManyRows       = errors.New("too many rows")
)

// Row maps a header to the cell value of one data line.
type Row map[string]string

type Table struct {
	Format  Format
	Headers []string
	Rows    []Row
}

type Options struct {
	// MaxRows caps data rows; zero means unlimited.
	MaxRows int
}

// Detect sniffs the content type of raw.
func Detect(raw []byte) (Format, error) {
	mt := mimetype.Detect(raw)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(xlsxMIME) {
			return FormatXLSX, nil
		}
		if m.Is("text/csv") || m.Is("text/plain") {
			return FormatCSV, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt.String())
}

// Parse reads the whole of r, detects its format and decodes it.
func Parse(r io.Reader, opts Options) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	format, err := Detect(raw)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return parseXLSX(raw, opts)
	default:
		return ParseCSV(bytes.NewReader(raw), opts)
	}
}

// ParseCSV decodes comma separated input with quoted fields. Ragged lines are
// padded or truncated to the header width.
func ParseCSV(r io.Reader, opts Options) (*Table, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, err
	}
	headers, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	table := &Table{Format: FormatCSV, Headers: headers}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(table.Rows)+2, err)
		}
		if err := table.appendRecord(record, opts); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func parseXLSX(raw []byte, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrMissingHeader
	}
	headers, err := normalizeHeader(rows[0])
	if err != nil {
		return nil, err
	}

	table := &Table{Format: FormatXLSX, Headers: headers}
	for _, record := range rows[1:] {
		if err := table.appendRecord(record, opts); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func (t *Table) appendRecord(record []string, opts Options) error {
	if isBlank(record) {
		return nil
	}
	if opts.MaxRows > 0 && len(t.Rows) >= opts.MaxRows {
		return fmt.Errorf("%w: limit is %d", ErrTooManyRows, opts.MaxRows)
	}
	row := make(Row, len(t.Headers))
	for i, h := range t.Headers {
		if h == "" {
			continue
		}
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

func normalizeHeader(header []string) ([]string, error) {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	nonEmpty := 0
	for i, h := range header {
		h = strings.TrimSpace(h)
		if !utf8.ValidString(h) {
			return nil, fmt.Errorf("invalid header encoding in column %d", i+1)
		}
		if h != "" {
			nonEmpty++
			seen[h]++
			if n := seen[h]; n > 1 {
				h = fmt.Sprintf("%s (%d)", h, n)
			}
		}
		out[i] = h
	}
	if nonEmpty == 0 {
		return nil, ErrMissingHeader
	}
	return out, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
