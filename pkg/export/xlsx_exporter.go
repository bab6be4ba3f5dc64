package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExporter renders Dataset records into a single-sheet workbook.
type XLSXExporter struct {
	sheet string
}

// NewXLSXExporter builds an XLSX exporter writing to the default sheet.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{sheet: "Sheet1"}
}

// ContentType is the MIME type of rendered documents.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render produces the workbook bytes. The first row holds the headers.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	header := make([]interface{}, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(e.sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx headers: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create xlsx header style: %w", err)
	}
	if err := f.SetRowStyle(e.sheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style xlsx headers: %w", err)
	}

	for i, record := range data.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := make([]interface{}, len(record))
		for j, v := range record {
			row[j] = v
		}
		if err := f.SetSheetRow(e.sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
