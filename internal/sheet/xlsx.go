// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sheet

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"
)

// XLSXTable is a [Table] backed by a local .xlsx workbook. It is meant for
// development without access to Google Sheets.
type XLSXTable struct {
	mu sync.Mutex
	f  *excelize.File
}

// OpenXLSX opens the workbook at path.
func OpenXLSX(path string) (*XLSXTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: opening workbook: %w", err)
	}
	return &XLSXTable{f: f}, nil
}

// Close closes the workbook.
func (t *XLSXTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}

// ReadRange implements the [Table] interface.
func (t *XLSXTable) ReadRange(ctx context.Context, r Range) ([][]string, error) {
	sp, err := parseSpan(r.Span)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	all, err := t.f.GetRows(r.Sheet)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUnavailable, r, err)
	}

	end := len(all)
	if sp.endRow != 0 && sp.endRow < end {
		end = sp.endRow
	}
	var rows [][]string
	for i := sp.startRow - 1; i < end; i++ {
		rows = append(rows, cut(all[i], sp.startCol, sp.endCol))
	}
	// Like the Sheets API, omit trailing empty rows.
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

// cut returns cells from startCol to endCol (1-based, inclusive) without
// trailing empty cells.
func cut(row []string, startCol, endCol int) []string {
	if startCol > len(row) {
		return []string{}
	}
	cells := row[startCol-1 : min(endCol, len(row))]
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return append([]string{}, cells...)
}

// WriteCell implements the [Table] interface. The workbook is saved after
// every write.
func (t *XLSXTable) WriteCell(ctx context.Context, c Cell, value string) error {
	col, _, err := parseRef(c.Col)
	if err != nil {
		return err
	}
	name, err := excelize.CoordinatesToCellName(col, c.Row)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.f.SetCellStr(c.Sheet, name, value); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrUnavailable, c, err)
	}
	if err := t.f.Save(); err != nil {
		return fmt.Errorf("%w: saving workbook: %w", ErrUnavailable, err)
	}
	return nil
}
