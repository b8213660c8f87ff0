// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging provides structured logging with OpenTelemetry trace context
// and redaction of credential material.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Redacted replaces the value of any attribute whose key names a secret.
const Redacted = "[REDACTED]"

// secretKeys are matched case-insensitively against the last segment of an
// attribute key.
var secretKeys = map[string]struct{}{
	"password":        {},
	"newpassword":     {},
	"confirmpassword": {},
	"password_hash":   {},
	"token":           {},
	"reset_token":     {},
	"secret":          {},
	"authorization":   {},
}

// Options configure Setup.
type Options struct {
	Service string
	Version string
	// Format is "json" or "text"; anything else means json.
	Format string
	// Level is debug, info, warn or error; empty means info.
	Level string
}

// traceHandler wraps a slog.Handler to add service identity and trace context.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds trace context to the log record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// ParseLevel maps a level name to a slog.Level. Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if _, ok := secretKeys[key]; ok && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// Setup creates a configured slog.Logger. If w is nil, it writes to os.Stderr.
func Setup(opts Options, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: redact,
	}

	var baseHandler slog.Handler
	if opts.Format == "text" {
		baseHandler = slog.NewTextHandler(w, hopts)
	} else {
		baseHandler = slog.NewJSONHandler(w, hopts)
	}

	return slog.New(&traceHandler{
		handler: baseHandler,
		service: opts.Service,
		version: opts.Version,
	})
}

// SetDefault sets up and installs the default logger, returning it.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts, nil)
	slog.SetDefault(logger)
	return logger
}
