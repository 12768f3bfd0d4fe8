// Package datasetxlsx exports flattened datasets as one workbook, one sheet
// per dataset.
package datasetxlsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"ocelbridge/internal/logger"
	"ocelbridge/pkg/models"
)

const (
	maxSheetName      = 31
	relationshipSheet = "_relationships"
	defaultSheet      = "Sheet1"
)

// Write saves datasets and the relationship candidates to path.
func Write(path string, datasets []*models.Dataset, candidates []*models.RelationshipCandidate) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	names := make(map[string]bool)
	for _, ds := range datasets {
		sheet := SheetName(ds.Name, names)
		if err := writeSheet(f, sheet, ds.ColumnNames(), ds.Rows); err != nil {
			return fmt.Errorf("failed to write sheet for %s: %w", ds.Name, err)
		}
	}

	header := []string{"scope", "source", "target", "kind", "max_targets", "edges", "junction"}
	rows := make([][]any, 0, len(candidates))
	for _, c := range candidates {
		junction := ""
		if c.Dataset != nil {
			junction = c.Dataset.Name
		}
		rows = append(rows, []any{string(c.Scope), c.SourceType, c.TargetType, string(c.Kind), c.MaxTargets, c.Edges, junction})
	}
	if err := writeSheet(f, SheetName(relationshipSheet, names), header, rows); err != nil {
		return fmt.Errorf("failed to write relationship sheet: %w", err)
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	logger.Infof("Wrote %d datasets to %s", len(datasets), path)
	return nil
}

// SheetName truncates name to the sheet name limit and makes it unique
// among taken, recording the result.
func SheetName(name string, taken map[string]bool) string {
	base := name
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	candidate := base
	for i := 2; taken[candidate]; i++ {
		suffix := "~" + strconv.Itoa(i)
		trimmed := base
		if len(trimmed)+len(suffix) > maxSheetName {
			trimmed = trimmed[:maxSheetName-len(suffix)]
		}
		candidate = trimmed + suffix
	}
	taken[candidate] = true
	return candidate
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := sw.SetRow("A1", head, excelize.RowOpts{}); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells(row)); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// cells maps NULL to an empty cell.
func cells(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v == nil {
			v = ""
		}
		out[i] = v
	}
	return out
}
