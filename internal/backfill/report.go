package backfill

import (
	"bytes"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
)

const (
	runSheet  = "Run"
	daysSheet = "Days"
)

// DaysHeader columns of the per device/day sheet
var DaysHeader = []string{
	"Device",
	"Date",
	"Events Read",
	"Events Inserted",
	"Events Updated",
	"Events Retained",
	"Events Skipped",
	"Events Errored",
	"Readings Read",
	"Readings Inserted",
	"Readings Skipped",
	"Readings Errored",
	"Temp Min",
	"Temp Max",
	"Temp Avg",
	"Defrosts",
	"Faults",
	"Error",
}

// WriteReport renders a run as an XLSX workbook
func WriteReport(res *Result) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, close explicitly on each path

	if err := f.SetSheetName("Sheet1", runSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRunSheet(f, res, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeDaysSheet(f, res, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRunSheet(f *excelize.File, res *Result, headerStyle int) error {
	rows := [][2]any{
		{"Run ID", res.RunID.String()},
		{"From", res.From},
		{"To", res.To},
		{"Started", res.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", res.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Devices", res.Devices},
		{"Device Errors", res.DeviceErrors},
		{"Events Read", res.EventsRead},
		{"Readings Read", res.ReadingsRead},
		{"Inserted", res.Inserted},
		{"Updated", res.Updated},
		{"Retained", res.Retained},
		{"Skipped", res.Skipped},
		{"Errored", res.Errored},
		{"Summaries", res.Summaries},
	}
	for i, row := range rows {
		if err := setCellValue(f, runSheet, 1, i+1, row[0]); err != nil {
			return fmt.Errorf("failed to set run label: %w", err)
		}
		if err := setCellValue(f, runSheet, 2, i+1, row[1]); err != nil {
			return fmt.Errorf("failed to set run value: %w", err)
		}
	}
	if err := f.SetCellStyle(runSheet, "A1", fmt.Sprintf("A%d", len(rows)), headerStyle); err != nil {
		return fmt.Errorf("failed to set label style: %w", err)
	}
	if err := f.SetColWidth(runSheet, "A", "A", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(runSheet, "B", "B", 40)
}

func writeDaysSheet(f *excelize.File, res *Result, headerStyle int) error {
	for col, header := range DaysHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(daysSheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(daysSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, d := range res.Days {
		row := i + 2
		values := []any{
			d.DeviceID,
			d.Date,
			d.Events.Processed,
			d.Events.Inserted,
			d.Events.Updated,
			d.Events.Retained,
			d.Events.Skipped,
			d.Events.Errored,
			d.Readings.Processed,
			d.Readings.Inserted,
			d.Readings.Skipped,
			d.Readings.Errored,
		}
		if s := d.Summary; s != nil {
			values = append(values, s.TempMin, s.TempMax, round2(s.TempAvg), s.DefrostAlerts, s.FaultsDetected)
		} else {
			values = append(values, nil, nil, nil, nil, nil)
		}
		values = append(values, d.Error)

		for col, v := range values {
			if v == nil || v == "" {
				continue
			}
			if err := setCellValue(f, daysSheet, col+1, row, v); err != nil {
				return fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetColWidth(daysSheet, "A", "B", 16); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetPanes(daysSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
