// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/config"
	"github.com/holomush/adminauth/internal/notify"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newSender builds the notification sender for cfg.Notify.Driver.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Sender, io.Closer, error) {
	n := cfg.Notify
	switch n.Driver {
	case config.DriverLog:
		return notify.NewLogSender(logger), nopCloser{}, nil
	case config.DriverSES:
		client, err := notify.NewSESClient(ctx, notify.SESConfig{
			Region:    n.SES.Region,
			AccessKey: n.SES.AccessKey,
			SecretKey: n.SES.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return notify.NewSESSender(client, n.From, n.SES.Attempts), nopCloser{}, nil
	case config.DriverSMTP:
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.From,
			FromName: n.FromName,
		}), nopCloser{}, nil
	case config.DriverAMQP:
		ch, err := notify.DialAMQP(n.AMQP.URL, n.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
		return notify.NewAMQPSender(ch, n.AMQP.Exchange, n.AMQP.RoutingKey), ch, nil
	default:
		return nil, nil, oops.Code("NOTIFY_DRIVER_UNKNOWN").With("driver", n.Driver).Errorf("unknown notification driver")
	}
}

// loadCatalog returns the configured templates, or the built-in ones.
func loadCatalog(path string) (*notify.Catalog, error) {
	if path == "" {
		return notify.DefaultCatalog(), nil
	}
	return notify.LoadCatalogFile(path)
}
