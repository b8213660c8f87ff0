// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
)

// Service is the credential lifecycle as seen by the API.
type Service interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Account, error)
	Get(ctx context.Context, id ulid.ULID) (*auth.Account, error)
	Edit(ctx context.Context, id ulid.ULID, patch auth.AccountPatch) (*auth.Account, error)
	Delete(ctx context.Context, id ulid.ULID) error
	IssuePasswordReset(ctx context.Context, email string) (string, error)
	ValidateResetToken(ctx context.Context, token string) (*auth.ResetToken, error)
	RedeemPasswordReset(ctx context.Context, token, newPassword string) error
	ResetLink(token string) string
}

var _ Service = (*auth.CredentialService)(nil)

// Response messages.
const (
	MessageAccountDeleted = "Account deleted successfully"
	MessageResetSent      = "Password reset email sent"
	MessageResetDone      = "Password reset successfully"
)

type handlers struct {
	svc        Service
	logger     *slog.Logger
	exposeLink bool
}

// accountID parses the {id} path parameter. An id that is not a ULID cannot
// name an account, so it is reported as not found.
func accountID(r *http.Request) (ulid.ULID, error) {
	raw := chi.URLParam(r, "id")
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_ID_INVALID").With("id", raw).Wrap(auth.ErrNotFound)
	}
	return id, nil
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.svc.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account.View())
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account.View())
}

func (h *handlers) edit(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch auth.AccountPatch
	if err := decode(w, r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.svc.Edit(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account.View())
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: MessageAccountDeleted})
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in ForgotPasswordRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token, err := h.svc.IssuePasswordReset(r.Context(), in.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := StatusResponse{Success: true, Message: MessageResetSent}
	// An empty token means the email was unknown and concealed.
	if h.exposeLink && token != "" {
		resp.ResetLink = h.svc.ResetLink(token)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) checkResetToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.ValidateResetToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in ResetPasswordRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.RedeemPasswordReset(r.Context(), chi.URLParam(r, "token"), in.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: MessageResetDone})
}
