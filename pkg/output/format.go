// Package output provides utilities for formatting and displaying trade-route reports.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/iwvelando/trade-route/internal/report"
	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Sheet names used by the workbook export.
const (
	PlanSheet  = "Plan"
	RouteSheet = "Route"
)

// Write renders the report in the named format.
func Write(w io.Writer, format string, rep *report.Report) error {
	switch format {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, rep)
	case constants.OutputFormatJSON:
		return JSONFormat(w, rep)
	case constants.OutputFormatXLSX:
		return XLSXFormat(w, rep)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, rep *report.Report) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = p.Fprintf(tw, "--- Plan ---\n")
	_, _ = p.Fprintf(tw, "Total Cost\t%s\n", rep.Summary.Cost)
	_, _ = p.Fprintf(tw, "Total Revenue\t%s\n", rep.Summary.Revenue)
	_, _ = p.Fprintf(tw, "Profit\t%s\n", rep.Summary.Profit)

	for _, table := range rep.Locations {
		_, _ = p.Fprintf(tw, "\n%s (%d transactions)\n", table.Location, len(table.Rows))
		_, _ = fmt.Fprintf(tw, "Commodity\tMax. Stock\tAmount\tType\n")
		_, _ = fmt.Fprintf(tw, "_________\t__________\t______\t____\n")
		for _, row := range table.Rows {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Commodity, row.Stock, row.Amount, row.Type)
		}
	}

	_, _ = p.Fprintf(tw, "\n--- Route (%d stops) ---\n", len(rep.Route))
	for i, step := range rep.Route {
		_, _ = p.Fprintf(tw, "\n%d. %s\n", i+1, step.Location)
		_, _ = fmt.Fprintf(tw, "Commodity\tAmount\tType\n")
		_, _ = fmt.Fprintf(tw, "_________\t______\t____\n")
		for _, row := range step.Rows {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Commodity, row.Amount, row.Type)
		}
	}
	return tw.Flush()
}

// JSONFormat outputs the report as indented JSON.
func JSONFormat(w io.Writer, rep *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// XLSXFormat outputs the report as a workbook with a Plan and a Route sheet.
func XLSXFormat(w io.Writer, rep *report.Report) error {
	f, err := Workbook(rep)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Write(w)
}

// Workbook builds the report workbook. The caller closes it.
func Workbook(rep *report.Report) (_ *excelize.File, err error) {
	f := excelize.NewFile()
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()
	if err := f.SetSheetName("Sheet1", PlanSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(RouteSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	plan := [][]interface{}{
		{"Total Cost", rep.Summary.Cost},
		{"Total Revenue", rep.Summary.Revenue},
		{"Profit", rep.Summary.Profit},
		{},
		{"Location", "Commodity", "Max. Stock", "Amount", "Type"},
	}
	planHeader := len(plan)
	if n := planHeader + countRows(rep); n > excelize.TotalRows {
		return nil, fmt.Errorf("plan needs %d rows, a sheet holds %d", n, excelize.TotalRows)
	}
	for _, table := range rep.Locations {
		for _, row := range table.Rows {
			plan = append(plan, []interface{}{table.Location, row.Commodity, row.Stock, row.Amount, row.Type})
		}
	}
	if err := writeRows(f, PlanSheet, plan); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(PlanSheet, planHeader, planHeader, headerStyle); err != nil {
		return nil, err
	}

	route := [][]interface{}{{"Step", "From", "Location", "Commodity", "Amount", "Type"}}
	for i, step := range rep.Route {
		for _, row := range step.Rows {
			route = append(route, []interface{}{i + 1, step.From, step.Location, row.Commodity, row.Amount, row.Type})
		}
	}
	if err := writeRows(f, RouteSheet, route); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(RouteSheet, 1, 1, headerStyle); err != nil {
		return nil, err
	}
	return f, nil
}

func countRows(rep *report.Report) int {
	n := 0
	for _, table := range rep.Locations {
		n += len(table.Rows)
	}
	return n
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}
