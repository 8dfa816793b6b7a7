// Package ingest turns an uploaded rate file into raw rows.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"SmartAd/api/constants"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyFile         = errors.New(constants.ErrEmptyFile)
	ErrNoDataRows        = errors.New(constants.ErrNoDataRows)
	ErrUnreadable        = errors.New("unreadable file")
)

// RawRow is one data row as cell strings. Number is 1-based and counts data
// rows only, so the first row after the header is row 1.
type RawRow struct {
	Number int
	Cells  []string
}

// Cell returns the trimmed value at position i, or "" past the end.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[i])
}

type Format string

const (
	FormatCSV  Format = ".csv"
	FormatXLSX Format = ".xlsx"
	FormatXLS  Format = ".xls"
)

// DetectFormat maps a file name or bare extension to a supported format.
func DetectFormat(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" && strings.HasPrefix(name, ".") {
		ext = strings.ToLower(name)
	}
	switch Format(ext) {
	case FormatCSV, FormatXLSX, FormatXLS:
		return Format(ext), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, constants.FormatError(constants.ErrUnsupportedFormat, ext))
}

// Parse decodes data according to the file name's extension. The header row
// is skipped and fully blank rows are dropped without renumbering.
func Parse(data []byte, fileName string) ([]RawRow, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var records [][]string
	switch format {
	case FormatCSV:
		records, err = readCSV(data)
	case FormatXLSX:
		records, err = readXLSX(data)
	case FormatXLS:
		records, err = readXLS(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, constants.FormatError(constants.ErrUnreadableFile, format, err))
	}
	return toRows(records)
}

func toRows(records [][]string) ([]RawRow, error) {
	if len(records) < 2 {
		return nil, ErrNoDataRows
	}
	rows := make([]RawRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if isEmptyRow(rec) {
			continue
		}
		rows = append(rows, RawRow{Number: i + 1, Cells: rec})
	}
	if len(rows) == 0 {
		return nil, ErrNoDataRows
	}
	return rows, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV accepts UTF-8 (with or without BOM) and falls back to Windows-1252,
// which is what spreadsheet tools on Windows export by default.
func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.Windows1252.NewDecoder())
	}
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()

	sheet := xl.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	return xl.GetRows(sheet)
}

func readXLS(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		records = append(records, cells)
	}
	return records, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
