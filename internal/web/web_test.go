// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/scriptbot/internal/testutil"
)

func send(t *testing.T, h http.Handler, method, target string, wantStatus int) string {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: want status %d, got %d (body: %q)", method, target, wantStatus, w.Code, w.Body.String())
	}
	return w.Body.String()
}

func TestRespondError(t *testing.T) {
	cases := map[string]struct {
		err        error
		json       bool
		wantStatus int
		wantInBody string
	}{
		"not found": {
			err:        ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantInBody: "404 Not Found",
		},
		"wrapped": {
			err:        fmt.Errorf("category %q: %w", "Sales", ErrBadRequest),
			json:       true,
			wantStatus: http.StatusBadRequest,
			wantInBody: `"error": "category \"Sales\": bad request"`,
		},
		"plain error": {
			err:        errors.New("boom"),
			json:       true,
			wantStatus: http.StatusInternalServerError,
			wantInBody: `"status": "error"`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.json {
					RespondJSONError(w, r, tc.err)
					return
				}
				RespondError(w, r, tc.err)
			})
			body := send(t, h, http.MethodGet, "/", tc.wantStatus)
			testutil.AssertContains(t, body, tc.wantInBody)
		})
	}
}

func TestRespondJSON(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, map[string]int{"rows": 3})
	})
	body := send(t, h, http.MethodGet, "/", http.StatusOK)
	got := testutil.UnmarshalJSON[map[string]int](t, []byte(body))
	testutil.AssertEqual(t, got, map[string]int{"rows": 3})
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	h := Health(mux)
	if Health(mux) != h {
		t.Fatal("Health returned a different handler for the same mux")
	}

	body := send(t, mux, http.MethodGet, "/health", http.StatusOK)
	testutil.AssertEqual(t, testutil.UnmarshalJSON[HealthResponse](t, []byte(body)), HealthResponse{
		OK:     true,
		Checks: map[string]CheckResponse{},
	})

	h.RegisterFunc("sheet", func() (string, bool) { return "unavailable", false })
	body = send(t, mux, http.MethodGet, "/health", http.StatusInternalServerError)
	testutil.AssertEqual(t, testutil.UnmarshalJSON[HealthResponse](t, []byte(body)), HealthResponse{
		OK: false,
		Checks: map[string]CheckResponse{
			"sheet": {Status: "unavailable", OK: false},
		},
	})
}

func TestHealthDuplicatePanics(t *testing.T) {
	h := Health(http.NewServeMux())
	h.RegisterFunc("a", func() (string, bool) { return "", true })
	defer func() {
		if recover() == nil {
			t.Fatal("want panic on duplicate check")
		}
	}()
	h.RegisterFunc("a", func() (string, bool) { return "", true })
}

func TestDebugger(t *testing.T) {
	mux := http.NewServeMux()
	d := Debugger(mux)
	if Debugger(mux) != d {
		t.Fatal("Debugger returned a different handler for the same mux")
	}
	d.KV("Rows", 42)
	d.KVFunc("Cached", func() any { return true })
	d.HandleFunc("invalidate", "Invalidate cache", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	body := send(t, mux, http.MethodGet, "/debug/", http.StatusOK)
	testutil.AssertContains(t, body, "<b>Rows:</b> 42")
	testutil.AssertContains(t, body, "<b>Cached:</b> true")
	testutil.AssertContains(t, body, `<a href="/debug/invalidate">Invalidate cache</a>`)
	testutil.AssertEqual(t, send(t, mux, http.MethodGet, "/debug/invalidate", http.StatusOK), "ok")
	send(t, mux, http.MethodGet, "/debug/nope", http.StatusNotFound)
}

func TestServerRecoversPanics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) { panic("oops") })
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("fine")) })

	var order []string
	s := &Server{
		Mux: mux,
		Middleware: []Middleware{
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, "outer")
					next.ServeHTTP(w, r)
				})
			},
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, "inner")
					next.ServeHTTP(w, r)
				})
			},
		},
	}

	testutil.AssertContains(t, send(t, s, http.MethodGet, "/panic", http.StatusInternalServerError), "panic: oops")
	testutil.AssertEqual(t, send(t, s, http.MethodGet, "/ok", http.StatusOK), "fine")
	testutil.AssertEqual(t, order, []string{"outer", "inner", "outer", "inner"})
}

func TestListenAndServeErrors(t *testing.T) {
	cases := map[string]struct {
		s    *Server
		want error
	}{
		"no addr": {s: &Server{Mux: http.NewServeMux()}, want: errNoAddr},
		"nil mux": {s: &Server{Addr: "localhost:0"}, want: errNilMux},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.s.ListenAndServe(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Addr:  "localhost:0",
		Mux:   http.NewServeMux(),
		Ready: cancel,
	}
	if err := s.ListenAndServe(ctx); err != nil {
		t.Fatal(err)
	}
}
