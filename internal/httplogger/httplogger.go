// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides a http.RoundTripper middleware that logs
// outgoing HTTP requests at the debug level.
package httplogger

import (
	"net/http"
	"time"

	"go.astrophena.name/scriptbot/internal/logger"
)

// New returns a http.RoundTripper that logs the method, URL, status and
// duration of every request made through t. If t is nil,
// [http.DefaultTransport] is used.
//
// URLs may contain secrets, such as the Telegram bot token, so log should
// have a scrubber.
func New(t http.RoundTripper, log *logger.Logger) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return &loggingTransport{transport: t, log: log}
}

type loggingTransport struct {
	transport http.RoundTripper
	log       *logger.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []any{
		"method", r.Method,
		"url", r.URL.String(),
		"duration", time.Since(start).Round(time.Millisecond),
	}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	t.log.DebugContext(r.Context(), "http request", attrs...)

	return resp, err
}
