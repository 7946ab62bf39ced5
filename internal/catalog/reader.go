package catalog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"catalog-import-service/internal/models"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	ErrEmptyFile      = errors.New("file has no data rows")
	ErrMissingHeader  = errors.New("file has no header row")
	ErrBadDelimiter   = errors.New("delimiter must be a single character")
	ErrUnknownCharset = errors.New("unsupported encoding")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one data record keyed by normalised header name.
type Row struct {
	Number int // 1-based line in the source file, header is line 1
	Cells  map[string]string
}

// NewRow builds a row from column/value pairs; used by callers that already
// hold parsed data.
func NewRow(number int, cells map[string]string) Row {
	normalised := make(map[string]string, len(cells))
	for k, v := range cells {
		normalised[normalizeHeader(k)] = strings.TrimSpace(v)
	}
	return Row{Number: number, Cells: normalised}
}

// Get returns the trimmed cell for a column, matched case-insensitively.
func (r Row) Get(column string) string {
	return r.Cells[normalizeHeader(column)]
}

func (r Row) isBlank() bool {
	for _, v := range r.Cells {
		if v != "" {
			return false
		}
	}
	return true
}

func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	return strings.TrimSuffix(h, " *")
}

// FormatFromPath picks the reader by file extension; anything that is not
// .xlsx is read as delimited text.
func FormatFromPath(path string) models.ImportFormat {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return models.ImportFormatXLSX
	}
	return models.ImportFormatCSV
}

// ReadFile loads all data rows of a CSV or XLSX file.
func ReadFile(path string, opts models.ImportOptions) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	if FormatFromPath(path) == models.ImportFormatXLSX {
		return ReadXLSX(f, opts.Sheet)
	}
	return ReadCSV(f, opts)
}

// ReadCSV parses delimited text. Blank lines are skipped.
func ReadCSV(file io.Reader, opts models.ImportOptions) ([]Row, error) {
	opts = opts.WithDefaults()

	delimiter := []rune(opts.Delimiter)
	if len(delimiter) != 1 {
		return nil, ErrBadDelimiter
	}

	var source io.Reader
	switch strings.ToLower(opts.Encoding) {
	case models.EncodingUTF8, "utf8":
		source = file
	case models.EncodingWindows1251, "cp1251":
		source = transform.NewReader(file, charmap.Windows1251.NewDecoder())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharset, opts.Encoding)
	}

	buffered := bufio.NewReader(source)
	if head, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(buffered)
	reader.Comma = delimiter[0]
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := Row{Number: line, Cells: make(map[string]string, len(headers))}
		for i, value := range record {
			if i < len(headers) && headers[i] != "" {
				row.Cells[headers[i]] = strings.TrimSpace(value)
			}
		}
		if row.isBlank() {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// ReadXLSX parses a workbook. The named sheet is used when present, then a
// sheet called "Catalog", then the first sheet.
func ReadXLSX(file io.Reader, sheet string) ([]Row, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	sheetName := sheets[0]
	for _, preferred := range []string{sheet, catalogSheet} {
		if preferred == "" {
			continue
		}
		found := false
		for _, name := range sheets {
			if strings.EqualFold(name, preferred) {
				sheetName = name
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(excelRows) == 0 {
		return nil, ErrMissingHeader
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}

	var rows []Row
	for rowIdx, excelRow := range excelRows[1:] {
		row := Row{Number: rowIdx + 2, Cells: make(map[string]string, len(headers))}
		for i, value := range excelRow {
			if i < len(headers) && headers[i] != "" {
				row.Cells[headers[i]] = strings.TrimSpace(value)
			}
		}
		if row.isBlank() {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}
