// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. See LogErrorContext.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext logs err at error level with ctx, so trace identifiers
// reach the record. For oops errors the code and context map are logged as
// separate attributes; other errors are logged by their string.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{
			"error", oopsErr.Error(),
		}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if octx := oopsErr.Context(); len(octx) > 0 {
			attrs = append(attrs, "context", octx)
		}
		logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	logger.ErrorContext(ctx, msg, "error", err)
}
