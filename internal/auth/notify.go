// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
)

// NotificationKind names the template a notification is rendered from.
type NotificationKind string

// Notification kinds emitted by the credential service.
const (
	NotifyWelcome         NotificationKind = "welcome"
	NotifyPasswordReset   NotificationKind = "password_reset"
	NotifyPasswordChanged NotificationKind = "password_changed"
)

// Template placeholder names.
const (
	VarUsername  = "username"
	VarPassword  = "password"
	VarFirstName = "firstname"
	VarLastName  = "lastname"
	VarResetLink = "reset_link"
	VarExpiresIn = "expires_in"
)

// Notification is an outbound message request. Vars may hold secrets and are
// never logged.
type Notification struct {
	Kind NotificationKind
	To   string
	Vars map[string]string
}

// LogValue omits Vars.
func (n Notification) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(n.Kind)),
		slog.String("to", n.To),
	)
}

// Notifier accepts notifications for delivery. Notify must not block on
// delivery; an error means the notification was not accepted.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, Notification) error { return nil }

func profileVars(a *Account) map[string]string {
	return map[string]string{
		VarUsername:  a.Username,
		VarFirstName: a.Profile.FirstName,
		VarLastName:  a.Profile.LastName,
	}
}
