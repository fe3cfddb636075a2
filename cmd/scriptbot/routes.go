// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"fmt"
	"net/http"
	"time"

	"go.astrophena.name/scriptbot/internal/web"

	"github.com/arl/statsviz"
)

func (e *engine) initRoutes() error {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("/", e.handleRoot)
	e.mux.HandleFunc("POST /webhook", e.bot.HandleWebhook)

	// Health check.
	health := web.Health(e.mux)
	health.RegisterFunc("sheet", e.sheetHealth)

	if !e.debug {
		return nil
	}

	// Debug routes.
	dbg := web.Debugger(e.mux)
	dbg.KV("Bot", "@"+e.me.UserName)
	dbg.KV("Sheet", e.sheetName)
	dbg.KVFunc("Cache", func() any {
		status, _ := e.sheetHealth()
		return status
	})
	dbg.KVFunc("Chat sessions", func() any { return e.cat.Sessions() })
	// Runtime metrics.
	if err := statsviz.Register(e.mux); err != nil {
		return fmt.Errorf("registering statsviz: %w", err)
	}
	dbg.Link("/debug/statsviz/", "Metrics")
	// Log streaming.
	dbg.Handle("logs", "Logs", e.logStream)
	dbg.HandleFunc("invalidate", "Invalidate cache", func(w http.ResponseWriter, r *http.Request) {
		e.cat.Invalidate()
		http.Redirect(w, r, "/debug/", http.StatusFound)
	})

	return nil
}

func (e *engine) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		web.RespondError(w, r, web.ErrNotFound)
		return
	}
	if e.me.UserName == "" {
		web.RespondError(w, r, web.ErrNotFound)
		return
	}
	http.Redirect(w, r, "https://t.me/"+e.me.UserName, http.StatusFound)
}

func (e *engine) sheetHealth() (status string, ok bool) {
	rows, fetchedAt, loaded := e.cache.Loaded()
	if !loaded {
		return "cold", true
	}
	return fmt.Sprintf("%d rows, fetched %s ago", rows, time.Since(fetchedAt).Round(time.Second)), true
}
