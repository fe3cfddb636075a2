// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scope is the OAuth scope needed to read and write spreadsheets.
const Scope = sheets.SpreadsheetsScope

// Sheets API quota is 60 requests per minute per user.
const (
	defaultLimit = rate.Limit(1)
	defaultBurst = 5
)

// SheetsOptions configure a [SheetsTable].
type SheetsOptions struct {
	// SpreadsheetID is the ID of the spreadsheet, as seen in its URL.
	SpreadsheetID string
	// TokenSource authenticates requests. Ignored if HTTPClient is set.
	TokenSource oauth2.TokenSource
	// HTTPClient, if set, is used as is for all requests.
	HTTPClient *http.Client
	// Limiter throttles requests. Defaults to the Sheets API quota.
	Limiter *rate.Limiter
}

// SheetsTable is a [Table] backed by Google Sheets.
type SheetsTable struct {
	svc *sheets.Service
	id  string
	lim *rate.Limiter
}

// NewSheetsTable returns a [SheetsTable] for the spreadsheet.
func NewSheetsTable(ctx context.Context, opts SheetsOptions) (*SheetsTable, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("sheet: spreadsheet ID is empty")
	}
	var copts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		copts = append(copts, option.WithHTTPClient(opts.HTTPClient))
	case opts.TokenSource != nil:
		copts = append(copts, option.WithTokenSource(opts.TokenSource))
	default:
		return nil, errors.New("sheet: neither token source nor HTTP client is set")
	}
	svc, err := sheets.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("sheet: creating Sheets service: %w", err)
	}
	lim := opts.Limiter
	if lim == nil {
		lim = rate.NewLimiter(defaultLimit, defaultBurst)
	}
	return &SheetsTable{svc: svc, id: opts.SpreadsheetID, lim: lim}, nil
}

// ReadRange implements the [Table] interface.
func (t *SheetsTable) ReadRange(ctx context.Context, r Range) ([][]string, error) {
	if err := t.lim.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	vr, err := t.svc.Spreadsheets.Values.Get(t.id, r.String()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUnavailable, r, err)
	}
	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows, nil
}

// WriteCell implements the [Table] interface.
func (t *SheetsTable) WriteCell(ctx context.Context, c Cell, value string) error {
	if err := t.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	_, err := t.svc.Spreadsheets.Values.Update(t.id, c.String(), &sheets.ValueRange{
		Values: [][]any{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrUnavailable, c, err)
	}
	return nil
}
