// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Adapted from https://pkg.go.dev/tailscale.com/tsweb#Debugger.

package web

import (
	"bytes"
	"cmp"
	"html/template"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"slices"
	"sync"
	"time"

	"go.astrophena.name/scriptbot/internal/version"
)

var debugTemplate = template.Must(template.New("debug").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{ .Version.Name }} debug</title></head>
<body>
<h1>{{ .Version.Name }} debug</h1>
<pre>{{ .Version }}</pre>
<ul>
{{ range .KVs }}<li><b>{{ .K }}:</b> {{ .V }}</li>
{{ end }}</ul>
<ul>
{{ range .Links }}<li><a href="{{ .URL }}">{{ .Desc }}</a></li>
{{ end }}</ul>
</body>
</html>
`))

// DebugHandler serves a debugging "homepage" at /debug/ and helps to register
// more debug endpoints, cross-linking them from it.
//
// Methods of DebugHandler can be safely called by multiple goroutines.
type DebugHandler struct {
	mux     *http.ServeMux
	mu      sync.RWMutex
	kvfuncs []kvfunc
	links   []link
}

type (
	kvfunc struct {
		k string
		v func() any
	}
	kv struct {
		K string
		V any
	}
	link struct{ URL, Desc string }
)

// Debugger returns the [DebugHandler] registered on mux at /debug/, creating it
// if necessary.
func Debugger(mux *http.ServeMux) *DebugHandler {
	h, pat := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/"}})
	if d, ok := h.(*DebugHandler); ok && pat == "/debug/" {
		return d
	}
	ret := &DebugHandler{mux: mux}
	mux.Handle("/debug/", ret)

	if hostname, err := os.Hostname(); err == nil {
		ret.KV("Machine", hostname)
	}
	ret.KVFunc("Uptime", func() any { return time.Since(timeStart).Round(time.Second) })
	ret.Handle("pprof/", "pprof", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))

	return ret
}

var timeStart = time.Now()

// ServeHTTP implements the [http.Handler] interface.
func (d *DebugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/debug/" {
		RespondError(w, r, ErrNotFound)
		return
	}

	d.mu.RLock()
	var kvs []kv
	for _, kvf := range d.kvfuncs {
		kvs = append(kvs, kv{kvf.k, kvf.v()})
	}
	links := slices.Clone(d.links)
	d.mu.RUnlock()

	data := struct {
		Version version.Info
		KVs     []kv
		Links   []link
	}{
		Version: version.Version(),
		KVs:     kvs,
		Links:   links,
	}
	var buf bytes.Buffer
	if err := debugTemplate.Execute(&buf, &data); err != nil {
		RespondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// Handle registers handler at /debug/<slug> and links it from /debug/.
func (d *DebugHandler) Handle(slug, desc string, handler http.Handler) {
	href := "/debug/" + slug
	d.mux.Handle(href, handler)
	d.Link(href, desc)
}

// HandleFunc is like Handle, but accepts [http.HandlerFunc].
func (d *DebugHandler) HandleFunc(slug, desc string, handler http.HandlerFunc) {
	d.Handle(slug, desc, handler)
}

// KV adds a key/value list item to /debug/.
func (d *DebugHandler) KV(k string, v any) {
	d.KVFunc(k, func() any { return v })
}

// KVFunc adds a key/value list item to /debug/. v is called on every render.
func (d *DebugHandler) KVFunc(k string, v func() any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kvfuncs = append(d.kvfuncs, kvfunc{k, v})
}

// Link adds a URL and description list item to /debug/.
func (d *DebugHandler) Link(url, desc string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, link{url, desc})
	slices.SortStableFunc(d.links, func(a, b link) int {
		return cmp.Compare(a.Desc, b.Desc)
	})
}
