// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the credential lifecycle as a JSON API.
//
// Routes:
//   - POST /admins, GET|PUT|DELETE /admins/{id} - account management
//   - POST /forgotpassword - issue a reset token for an email
//   - GET|POST /resetpassword/{token} - check or redeem a reset token
//
// Domain errors map to 4xx statuses with a short message. Storage and hashing
// failures are logged and rendered as a bare "internal error".
package httpapi
