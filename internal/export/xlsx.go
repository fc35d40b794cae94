// Package export renders module submissions as spreadsheets for reviewers.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/records"
)

// SheetName is the worksheet holding submissions.
const SheetName = "Submissions"

var fixedColumns = []string{"User", "Status", "Updated At"}

// WriteSubmissions writes one row per submission with a column per input
// field of doc, labelled by field label.
func WriteSubmissions(w io.Writer, doc schema.Document, subs []records.Submission) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	fields := doc.InputFields()
	header := append([]string{}, fixedColumns...)
	for _, fd := range fields {
		header = append(header, fd.DisplayLabel())
	}
	for i, title := range header {
		if err := setCell(f, i+1, 1, title); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for r, sub := range subs {
		row := r + 2
		cells := []any{sub.UserID, string(sub.Status), sub.UpdatedAt.UTC().Format(time.RFC3339)}
		for _, fd := range fields {
			cells = append(cells, cellValue(sub.Answers[fd.Name]))
		}
		for c, v := range cells {
			if err := setCell(f, c+1, row, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(SheetName, "A", "C", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(SheetName, cell, v); err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}

func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ", ")
	case string, float64:
		return val
	default:
		return fmt.Sprint(val)
	}
}
