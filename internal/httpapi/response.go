// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/pkg/errutil"
)

// StatusResponse is the body of operations that return no entity.
type StatusResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ResetLink string `json:"resetLink,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const internalErrorMessage = "internal error"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindValidation, auth.KindInvalidToken:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindExpiredToken:
		return http.StatusGone
	case auth.KindInvalidCredentials:
		return http.StatusUnauthorized
	case auth.KindThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Infrastructure failures are logged with their full
// context and reach the client only as a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err)
		writeJSON(w, status, ErrorResponse{Message: internalErrorMessage})
		return
	}

	body := ErrorResponse{Message: publicMessage(err)}
	var ve *auth.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if field, ok := auth.ConflictField(err); ok {
		body.Field = field
	}
	if retry, ok := auth.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	}
	writeJSON(w, status, body)
}

// publicMessage returns the sentinel text for err so that wrapped codes and
// context never reach the client.
func publicMessage(err error) string {
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return auth.ErrValidation.Error()
	case auth.KindConflict:
		if field, ok := auth.ConflictField(err); ok {
			return (&auth.ConflictError{Field: field}).Error()
		}
		return auth.ErrConflict.Error()
	case auth.KindNotFound:
		return auth.ErrNotFound.Error()
	case auth.KindInvalidToken:
		return auth.ErrInvalidToken.Error()
	case auth.KindExpiredToken:
		return auth.ErrExpiredToken.Error()
	case auth.KindInvalidCredentials:
		return auth.ErrInvalidCredentials.Error()
	case auth.KindThrottled:
		return auth.ErrThrottled.Error()
	default:
		return internalErrorMessage
	}
}
