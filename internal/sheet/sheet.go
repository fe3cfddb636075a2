// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sheet provides access to the spreadsheet that stores scripts.
//
// The spreadsheet has four columns, A to D: category, menu label, content and
// image URL. Row 1 is a header.
package sheet

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// Column letters of the spreadsheet layout.
const (
	ColCategory  = "A"
	ColMenuLabel = "B"
	ColContent   = "C"
	ColImage     = "D"
)

// HeaderRow is the 1-based number of the header row.
const HeaderRow = 1

// ErrUnavailable is returned when the spreadsheet can't be read or written.
var ErrUnavailable = errors.New("sheet: data source unavailable")

// Table is a named-sheet spreadsheet that can be read by range and written
// cell by cell.
type Table interface {
	// ReadRange returns rows of the range in order. Trailing empty cells and
	// rows may be omitted; callers treat a missing cell as empty.
	ReadRange(ctx context.Context, r Range) ([][]string, error)
	// WriteCell writes value into a single cell as is, without interpreting
	// it as a formula or number.
	WriteCell(ctx context.Context, c Cell, value string) error
}

// Range is an A1 range on a named sheet, like 'Scripts'!A:D.
type Range struct {
	Sheet string
	Span  string // A:D, D2:D, D5
}

// String returns the range in A1 notation.
func (r Range) String() string { return QuoteSheet(r.Sheet) + "!" + r.Span }

// Cell addresses a single cell on a named sheet.
type Cell struct {
	Sheet string
	Col   string
	Row   int // 1-based
}

// Range returns the single-cell range addressing c.
func (c Cell) Range() Range {
	return Range{Sheet: c.Sheet, Span: c.Col + strconv.Itoa(c.Row)}
}

// String returns the cell in A1 notation.
func (c Cell) String() string { return c.Range().String() }

// FullRange returns the four-column range of the whole sheet, header included.
func FullRange(sheet string) Range {
	return Range{Sheet: sheet, Span: ColCategory + ":" + ColImage}
}

// ImageColumn returns the image column from the first row after the header.
func ImageColumn(sheet string) Range {
	return Range{Sheet: sheet, Span: ColImage + strconv.Itoa(HeaderRow+1) + ":" + ColImage}
}

// ImageCell returns the image cell of the 1-based row.
func ImageCell(sheet string, row int) Cell {
	return Cell{Sheet: sheet, Col: ColImage, Row: row}
}

// QuoteSheet quotes the sheet name for use in A1 notation if it contains
// anything besides letters, digits and underscores.
func QuoteSheet(name string) string {
	plain := name != ""
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// span is a parsed A1 span. Columns and rows are 1-based; zero endRow means
// unbounded.
type span struct {
	startCol, endCol int
	startRow, endRow int
}

func parseSpan(s string) (span, error) {
	from, to, isRange := strings.Cut(s, ":")
	if !isRange {
		to = from
	}
	sc, sr, err := parseRef(from)
	if err != nil {
		return span{}, err
	}
	ec, er, err := parseRef(to)
	if err != nil {
		return span{}, err
	}
	if sr == 0 {
		sr = 1
	}
	if ec < sc || (er != 0 && er < sr) {
		return span{}, errors.New("sheet: inverted range " + strconv.Quote(s))
	}
	return span{startCol: sc, endCol: ec, startRow: sr, endRow: er}, nil
}

// parseRef parses "D", "D2" or "AB10". Row is zero when omitted.
func parseRef(ref string) (col, row int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	if i == 0 {
		return 0, 0, errors.New("sheet: invalid cell reference " + strconv.Quote(ref))
	}
	if i < len(ref) {
		row, err = strconv.Atoi(ref[i:])
		if err != nil || row < 1 {
			return 0, 0, errors.New("sheet: invalid cell reference " + strconv.Quote(ref))
		}
	}
	return col, row, nil
}
