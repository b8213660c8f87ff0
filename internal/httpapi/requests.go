// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// ForgotPasswordRequest is the body of POST /forgotpassword.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate checks the request shape.
func (in ForgotPasswordRequest) Validate() error {
	return fieldErrors(validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(0, auth.MaxEmailLength)),
	))
}

// ResetPasswordRequest is the body of POST /resetpassword/{token}.
type ResetPasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmpassword"`
}

// Validate checks that both passwords are present and equal.
func (in ResetPasswordRequest) Validate() error {
	return fieldErrors(validation.ValidateStruct(&in,
		validation.Field(&in.NewPassword, validation.Required, validation.Length(0, auth.MaxPasswordLength)),
		validation.Field(&in.ConfirmPassword, validation.Required, validation.By(func(any) error {
			if in.ConfirmPassword != in.NewPassword {
				return errors.New("passwords do not match")
			}
			return nil
		})),
	))
}

// unknownFieldPrefix starts the decoder error for a field dst does not declare.
const unknownFieldPrefix = "json: unknown field "

// decode reads a JSON body into dst. Malformed bodies and fields dst does
// not declare are validation errors.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return oops.Code("REQUEST_BODY_EMPTY").Wrap(auth.NewValidationError("body", "cannot be blank"))
		}
		if field, ok := strings.CutPrefix(err.Error(), unknownFieldPrefix); ok {
			return oops.Code("REQUEST_FIELD_UNKNOWN").
				With("field", field).
				Wrap(auth.NewValidationError("body", "unknown field "+field))
		}
		return oops.Code("REQUEST_BODY_INVALID").Wrap(auth.NewValidationError("body", "must be a JSON object"))
	}
	return nil
}

// fieldErrors converts ozzo field errors into the service taxonomy.
func fieldErrors(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return oops.Code("REQUEST_INVALID").Wrap(auth.NewValidationError("body", err.Error()))
	}
	ve := &auth.ValidationError{Fields: make(map[string]string, len(errs))}
	for field, fieldErr := range errs {
		ve.Fields[field] = fieldErr.Error()
	}
	return oops.Code("REQUEST_INVALID").Wrap(ve)
}
