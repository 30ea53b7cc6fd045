package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/lherron/crmq/internal/domain"
)

// SheetName is the worksheet xlsx exports are written to.
const SheetName = "CRM"

// WriteXLSX writes the same table as WriteCSV as a single-sheet workbook.
// Every cell is a string so ids and phone numbers keep leading zeros.
func WriteXLSX(w io.Writer, cols []Column, records []domain.MergedRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	if err := sw.SetRow("A1", cells(Headers(cols))); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for n := range records {
		axis, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells(Row(cols, n+1, &records[n]))); err != nil {
			return fmt.Errorf("write row %d: %w", n+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
