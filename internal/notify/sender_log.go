// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
)

// LogSender records deliveries in the log instead of sending them. The body
// is never written.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message envelope.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification", "message", msg, "body_bytes", len(msg.Body))
	return nil
}
