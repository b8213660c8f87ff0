// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify renders credential notifications from templates and delivers
// them asynchronously through a pluggable Sender.
package notify

import (
	"context"
	"log/slog"
)

// Message is a rendered notification ready for delivery. Body may contain
// credentials and is never logged.
type Message struct {
	To       string
	Subject  string
	Body     string
	Template string
}

// LogValue omits Body.
func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
		slog.String("template", m.Template),
	)
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
