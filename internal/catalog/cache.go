// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.astrophena.name/scriptbot/internal/sheet"

	"golang.org/x/sync/singleflight"
)

// Row is a data row of the spreadsheet.
type Row struct {
	Number    int // 1-based row number in the sheet
	Category  string
	MenuLabel string
	Content   string
	ImageURL  string
}

// Snapshot is an immutable copy of the spreadsheet at one point in time. The
// header row is not included in Rows.
type Snapshot struct {
	Rows      []Row
	FetchedAt time.Time
}

// Cache holds at most one [Snapshot] of the spreadsheet. It fetches the sheet
// on first use and keeps the result until [Cache.Invalidate] is called.
type Cache struct {
	table sheet.Table
	rng   sheet.Range
	now   func() time.Time

	sf singleflight.Group

	mu   sync.Mutex
	snap *Snapshot
	gen  uint64 // incremented by Invalidate
}

// NewCache returns a cold [Cache] of the named sheet in table.
func NewCache(table sheet.Table, sheetName string) *Cache {
	return &Cache{
		table: table,
		rng:   sheet.FullRange(sheetName),
		now:   time.Now,
	}
}

// fetchTimeout bounds a shared fetch, which outlives the callers waiting on
// it.
const fetchTimeout = time.Minute

// Get returns the cached snapshot, fetching the sheet if the cache is cold.
// Concurrent cold calls share one fetch. A failed fetch is not cached.
//
// The shared fetch is not canceled with ctx: a caller that goes away stops
// waiting, but others still get the result.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	if c.snap != nil {
		snap := c.snap
		c.mu.Unlock()
		return snap, nil
	}
	gen := c.gen
	c.mu.Unlock()

	ch := c.sf.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		rows, err := c.table.ReadRange(fctx, c.rng)
		if err != nil {
			return nil, err
		}
		snap := &Snapshot{Rows: parseRows(rows), FetchedAt: c.now()}

		c.mu.Lock()
		defer c.mu.Unlock()
		// Invalidate was called while the fetch was in flight: don't keep
		// data that may predate it.
		if c.gen == gen {
			c.snap = snap
		}
		return snap, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached snapshot. The next Get fetches the sheet again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	c.gen++
}

// Loaded reports the number of rows and fetch time of the cached snapshot.
// ok is false when the cache is cold.
func (c *Cache) Loaded() (rows int, fetchedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return 0, time.Time{}, false
	}
	return len(c.snap.Rows), c.snap.FetchedAt, true
}

func parseRows(values [][]string) []Row {
	if len(values) <= 1 {
		return nil
	}
	rows := make([]Row, 0, len(values)-1)
	for i, v := range values[1:] {
		rows = append(rows, Row{
			Number:    i + 2,
			Category:  cell(v, 0),
			MenuLabel: cell(v, 1),
			Content:   cell(v, 2),
			ImageURL:  cell(v, 3),
		})
	}
	return rows
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
