// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package catalog turns the flat script spreadsheet into a two-level menu of
// categories and scripts.
//
// A menu label encodes its category as a prefix in full-width parentheses:
//
//	（Sales）Intro
//
// is the script "Intro" of the category "Sales". Menu entries are handed out
// with short ids (m_0, m_1, ...) that fit into Telegram callback data. The ids
// are kept per [Session] and are valid until the next [Session.Menu] call.
package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/scriptbot/internal/syncx"
)

var (
	// ErrNotFound is returned when nothing matches a request.
	ErrNotFound = errors.New("catalog: not found")
	// ErrStaleReference is returned for menu ids that were replaced by a
	// later menu listing or never issued.
	ErrStaleReference = errors.New("catalog: stale menu reference")
)

// SearchLimit is the maximum number of search results.
const SearchLimit = 5

// DefaultSessionTTL is how long an idle session keeps its menu ids.
const DefaultSessionTTL = 24 * time.Hour

// MenuEntry is a script of a category as shown in the menu.
type MenuEntry struct {
	ID    string
	Label string // menu label without the category prefix
}

// ContentRecord is a resolved script.
type ContentRecord struct {
	Label string // full menu label
	Text  string
	Image string // empty if the script has no image
}

// Catalog serves categories, menus, scripts and search results from a shared
// [Cache].
type Catalog struct {
	cache *Cache
	ttl   time.Duration
	now   func() time.Time

	sessions *syncx.Protected[map[string]*Session]
}

// New returns a [Catalog] reading from cache. Idle sessions are dropped after
// ttl; zero means [DefaultSessionTTL].
func New(cache *Cache, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Catalog{
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		sessions: syncx.Protect(make(map[string]*Session)),
	}
}

// Cache returns the underlying cache.
func (c *Catalog) Cache() *Cache { return c.cache }

// Invalidate drops the cached spreadsheet.
func (c *Catalog) Invalidate() { c.cache.Invalidate() }

// Categories lists categories in the order they first appear in the sheet.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	snap, err := c.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	return Categories(snap), nil
}

// Search returns up to [SearchLimit] scripts matching query.
func (c *Catalog) Search(ctx context.Context, query string) ([]ContentRecord, error) {
	snap, err := c.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	return Search(snap, query), nil
}

// Session returns the session identified by key, creating it if needed. The
// bot keys sessions by chat.
func (c *Catalog) Session(key string) *Session {
	now := c.now()
	var s *Session
	c.sessions.Access(func(m map[string]*Session) {
		for k, sess := range m {
			if k != key && now.Sub(sess.lastUsed) > c.ttl {
				delete(m, k)
			}
		}
		s = m[key]
		if s == nil || now.Sub(s.lastUsed) > c.ttl {
			s = &Session{cat: c}
			m[key] = s
		}
		s.lastUsed = now
	})
	return s
}

// Sessions returns the number of live sessions.
func (c *Catalog) Sessions() int {
	var n int
	c.sessions.RAccess(func(m map[string]*Session) { n = len(m) })
	return n
}

// Session holds the menu ids issued to one chat.
type Session struct {
	cat      *Catalog
	lastUsed time.Time // guarded by the catalog's sessions lock

	mu  sync.Mutex
	ids map[string]string // id → full menu label
}

// Menu lists scripts of category in sheet order and replaces all ids
// previously issued by this session. It returns [ErrNotFound] if the category
// has no scripts.
func (s *Session) Menu(ctx context.Context, category string) ([]MenuEntry, error) {
	snap, err := s.cat.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	entries, ids := Menu(snap, category)

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// Lookup returns the full menu label for id issued by the last Menu call.
func (s *Session) Lookup(id string) (fullLabel string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullLabel, ok = s.ids[id]
	return fullLabel, ok
}

// Content resolves id issued by the last Menu call to its script. It returns
// [ErrStaleReference] for unknown ids and [ErrNotFound] if the script is no
// longer in the sheet.
func (s *Session) Content(ctx context.Context, id string) (ContentRecord, error) {
	label, ok := s.Lookup(id)
	if !ok {
		return ContentRecord{}, ErrStaleReference
	}
	snap, err := s.cat.cache.Get(ctx)
	if err != nil {
		return ContentRecord{}, err
	}
	rec, ok := ResolveContent(snap, label)
	if !ok {
		return ContentRecord{}, ErrNotFound
	}
	return rec, nil
}

// Categories returns distinct trimmed non-empty categories of snap in the
// order they first appear.
func Categories(snap *Snapshot) []string {
	var (
		cats []string
		seen = make(map[string]bool)
	)
	for _, r := range snap.Rows {
		c := strings.TrimSpace(r.Category)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		cats = append(cats, c)
	}
	return cats
}

// Menu returns scripts of category in row order together with the id → full
// label map for them.
func Menu(snap *Snapshot, category string) ([]MenuEntry, map[string]string) {
	var entries []MenuEntry
	ids := make(map[string]string)
	for _, r := range snap.Rows {
		label, ok := DecodeLabel(category, r.MenuLabel)
		if !ok {
			continue
		}
		id := "m_" + strconv.Itoa(len(entries))
		entries = append(entries, MenuEntry{ID: id, Label: label})
		ids[id] = r.MenuLabel
	}
	return entries, ids
}

// ResolveContent returns the script of the first row whose menu label equals
// fullLabel.
func ResolveContent(snap *Snapshot, fullLabel string) (ContentRecord, bool) {
	for _, r := range snap.Rows {
		if r.MenuLabel == fullLabel {
			return record(r), true
		}
	}
	return ContentRecord{}, false
}

// Search returns up to [SearchLimit] scripts whose menu label or content
// contains query, ignoring case, in row order. A blank query matches nothing.
func Search(snap *Snapshot, query string) []ContentRecord {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	q := strings.ToLower(query)
	var res []ContentRecord
	for _, r := range snap.Rows {
		if !strings.Contains(strings.ToLower(r.MenuLabel), q) && !strings.Contains(strings.ToLower(r.Content), q) {
			continue
		}
		res = append(res, record(r))
		if len(res) == SearchLimit {
			break
		}
	}
	return res
}

func record(r Row) ContentRecord {
	return ContentRecord{Label: r.MenuLabel, Text: r.Content, Image: r.ImageURL}
}
