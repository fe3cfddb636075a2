// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package ingest stores links to images posted to a channel in the image
// column of the script spreadsheet.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/scriptbot/internal/logger"
	"go.astrophena.name/scriptbot/internal/sheet"
	"go.astrophena.name/scriptbot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrIngestion is returned when an image couldn't be stored.
var ErrIngestion = errors.New("ingest: image ingestion failed")

// AllocateSlot returns the 1-based row number that receives the next image,
// given the image column from row 2 down. It is the first row with an empty
// cell or, if there is none, the row right after the column. A cell holding
// only whitespace is not empty.
func AllocateSlot(column []string) int {
	for i, v := range column {
		if v == "" {
			return i + sheet.HeaderRow + 1
		}
	}
	return len(column) + sheet.HeaderRow + 1
}

// ImageRef references an image stored by Telegram.
type ImageRef struct {
	FileID       string
	FileUniqueID string // stable across bots and redeliveries
}

// FindImage returns the image attached to msg: the largest photo size or a
// document with an image/* MIME type.
func FindImage(msg *tgbotapi.Message) (ImageRef, bool) {
	if msg == nil {
		return ImageRef{}, false
	}
	if doc := msg.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		return ImageRef{FileID: doc.FileID, FileUniqueID: doc.FileUniqueID}, true
	}
	if n := len(msg.Photo); n > 0 {
		// Telegram lists sizes from smallest to largest.
		p := msg.Photo[n-1]
		return ImageRef{FileID: p.FileID, FileUniqueID: p.FileUniqueID}, true
	}
	return ImageRef{}, false
}

// Resolver turns a Telegram file ID into a URL the image can be downloaded
// from.
type Resolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Invalidator is implemented by caches that must forget the sheet after a
// write.
type Invalidator interface {
	Invalidate()
}

// Result describes a stored image.
type Result struct {
	Row       int       `json:"row"`
	URL       string    `json:"url"`
	At        time.Time `json:"at"`
	Duplicate bool      `json:"-"` // image was stored by an earlier delivery
}

// Ingester writes image URLs into the image column of a sheet.
type Ingester struct {
	Table    sheet.Table
	Sheet    string
	Resolver Resolver
	// Log remembers ingested images so redelivered updates don't take
	// another row. If nil, duplicates are not detected.
	Log store.Store
	// Cache, if set and InvalidateOnWrite is true, is invalidated after
	// every write so menus show the new image right away.
	Cache             Invalidator
	InvalidateOnWrite bool

	mu  sync.Mutex // serializes slot allocation
	now func() time.Time
}

// Ingest stores the URL of the image in the first free image cell.
func (i *Ingester) Ingest(ctx context.Context, ref ImageRef) (Result, error) {
	if ref.FileID == "" {
		return Result{}, fmt.Errorf("%w: empty file ID", ErrIngestion)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	key := "ingest:" + ref.FileUniqueID
	if i.Log != nil && ref.FileUniqueID != "" {
		b, err := i.Log.Get(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("%w: reading ingestion log: %w", ErrIngestion, err)
		}
		if b != nil {
			var res Result
			if err := json.Unmarshal(b, &res); err == nil {
				res.Duplicate = true
				return res, nil
			}
		}
	}

	url, err := i.Resolver.FileURL(ctx, ref.FileID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: resolving file: %w", ErrIngestion, err)
	}

	rows, err := i.Table.ReadRange(ctx, sheet.ImageColumn(i.Sheet))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	column := make([]string, len(rows))
	for n, row := range rows {
		if len(row) > 0 {
			column[n] = row[0]
		}
	}
	slot := AllocateSlot(column)

	if err := i.Table.WriteCell(ctx, sheet.ImageCell(i.Sheet, slot), url); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	now := time.Now
	if i.now != nil {
		now = i.now
	}
	res := Result{Row: slot, URL: url, At: now()}

	if i.Log != nil && ref.FileUniqueID != "" {
		b, err := json.Marshal(res)
		if err == nil {
			err = i.Log.Set(ctx, key, b)
		}
		if err != nil {
			// The image is in the sheet already.
			logger.Get(ctx).Warn("failed to record ingested image", "row", slot, "err", err)
		}
	}

	if i.InvalidateOnWrite && i.Cache != nil {
		i.Cache.Invalidate()
	}
	return res, nil
}
