// Package template produces the blank rate upload file operators fill in.
package template

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"SmartAd/api/constants"
	"SmartAd/api/setup/refentity"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"

	RatesSheet     = "Rates"
	ReferenceSheet = "Reference"

	// Data-validation dropdowns cover this many data rows.
	maxTemplateRows = 1000
)

// ParseFormat defaults an empty value to xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported template format %q (expected xlsx or csv)", s)
}

// SampleRows are the example lines written under the header.
func SampleRows() [][]string {
	return [][]string{
		{"DG", "Daily Graphic", "Display", "Full Page", "Front Page", "Full Color", "15000.00", "GHS", "2025-01-01", "2025-12-31", "Active", "Front page premium"},
		{"GT", "Ghanaian Times", "Classified", "Quarter Page", "Inside Page", "Black & White", "2500.00", "GHS", "2025-01-01", "2025-06-30", "Inactive", ""},
	}
}

// ReferenceSource lists the active entities of a kind.
type ReferenceSource interface {
	Search(ctx context.Context, kind refentity.Kind, query string, limit int) ([]refentity.Entity, error)
}

type Builder struct {
	refs ReferenceSource
}

func NewBuilder(refs ReferenceSource) *Builder {
	return &Builder{refs: refs}
}

func WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(constants.RateUploadHeaders); err != nil {
		return err
	}
	if err := cw.WriteAll(SampleRows()); err != nil {
		return err
	}
	return cw.Error()
}

// referenceColumns ties each Reference sheet column to the Rates column its
// dropdown serves.
var referenceColumns = []struct {
	kind      refentity.Kind
	refColumn string
	rateCol   string
}{
	{refentity.Publication, "A", "A"},
	{refentity.AdCategory, "B", "C"},
	{refentity.AdSize, "C", "D"},
	{refentity.PagePosition, "D", "E"},
	{refentity.ColorType, "E", "F"},
	{refentity.Currency, "F", "H"},
}

const statusColumn = "K"

// WriteXLSX writes a workbook with the Rates sheet, a Reference sheet of
// active entities, and dropdowns linking the two.
func (b *Builder) WriteXLSX(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RatesSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(ReferenceSheet); err != nil {
		return err
	}

	header := make([]interface{}, len(constants.RateUploadHeaders))
	for i, h := range constants.RateUploadHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(RatesSheet, "A1", &header); err != nil {
		return err
	}
	for i, sample := range SampleRows() {
		row := make([]interface{}, len(sample))
		for j, v := range sample {
			row[j] = v
		}
		if err := f.SetSheetRow(RatesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(constants.RateUploadHeaders))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(RatesSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(RatesSheet, "A", lastCol, 18); err != nil {
		return err
	}

	for _, rc := range referenceColumns {
		entities, err := b.refs.Search(ctx, rc.kind, "", 0)
		if err != nil {
			return fmt.Errorf("list %s: %w", rc.kind.Label(), err)
		}
		if err := f.SetCellValue(ReferenceSheet, rc.refColumn+"1", cases.Title(language.English).String(rc.kind.Label())); err != nil {
			return err
		}
		for i, e := range entities {
			value := e.Name
			if rc.kind.KeyedByCode() {
				value = e.Code
			}
			if err := f.SetCellValue(ReferenceSheet, fmt.Sprintf("%s%d", rc.refColumn, i+2), value); err != nil {
				return err
			}
		}
		if len(entities) == 0 {
			continue
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", rc.rateCol, rc.rateCol, maxTemplateRows+1)
		dv.SetSqrefDropList(fmt.Sprintf("%s!$%s$2:$%s$%d", ReferenceSheet, rc.refColumn, rc.refColumn, len(entities)+1))
		if err := f.AddDataValidation(RatesSheet, dv); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(ReferenceSheet, "A1", "F1", bold); err != nil {
		return err
	}

	status := excelize.NewDataValidation(true)
	status.Sqref = fmt.Sprintf("%s2:%s%d", statusColumn, statusColumn, maxTemplateRows+1)
	if err := status.SetDropList([]string{"Active", "Inactive"}); err != nil {
		return err
	}
	if err := f.AddDataValidation(RatesSheet, status); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}
