// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger sets up logging for scriptbot.
//
// Two styles are supported: [Logf], a printf-like function for simple
// messages, and [Logger], a [slog.Logger] with an adjustable level that is
// carried in a [context.Context].
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the basic logger type: a printf-like func. Like [log.Printf], the
// format need not end in a newline. Logf functions must be safe for concurrent
// use.
type Logf func(format string, args ...any)

// Write implements the [io.Writer] interface.
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", p)
	return len(p), nil
}

// Logger is a structured logger with a level that can be changed at runtime.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
}

// Options configure a [Logger] created by [New].
type Options struct {
	// Level, if set, is shared with the returned Logger. Otherwise a new
	// LevelVar with level Info is created.
	Level *slog.LevelVar
	// Scrubber, if set, is applied to the message and every string attribute,
	// so that secrets never reach the log output.
	Scrubber *strings.Replacer
}

// New returns a Logger that writes text records to w.
func New(w io.Writer, opts Options) *Logger {
	level := opts.Level
	if level == nil {
		level = new(slog.LevelVar)
	}
	hopts := &slog.HandlerOptions{Level: level}
	if scrubber := opts.Scrubber; scrubber != nil {
		hopts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			switch a.Value.Kind() {
			case slog.KindString:
				a.Value = slog.StringValue(scrubber.Replace(a.Value.String()))
			case slog.KindAny:
				if err, ok := a.Value.Any().(error); ok {
					a.Value = slog.StringValue(scrubber.Replace(err.Error()))
				}
			}
			return a
		}
	}
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, hopts)),
		Level:  level,
	}
}

// With returns a Logger that includes the given attributes in each record. It
// shares the level with l.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), Level: l.Level}
}

// Logf returns a [Logf] that logs messages with the Info level.
func (l *Logger) Logf() Logf {
	return func(format string, args ...any) {
		l.Info(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
	}
}

type ctxKey struct{}

// Put returns a copy of ctx that carries l.
func Put(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger carried by ctx, if any.
func FromContext(ctx context.Context) (*Logger, bool) {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	return l, ok
}

// Get returns the Logger carried by ctx. If there is none, it returns a
// Logger writing to standard error.
func Get(ctx context.Context) *Logger {
	if l, ok := FromContext(ctx); ok {
		return l
	}
	return New(os.Stderr, Options{})
}

// OpenFile returns a writer to path that rotates the file once it grows
// over maxSizeMB megabytes, keeping at most maxBackups old copies.
func OpenFile(path string, maxSizeMB, maxBackups int) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}, nil
}
