// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// implicitTLSPort is the SMTPS port; every other port upgrades with STARTTLS
// when the server offers it.
const implicitTLSPort = 465

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// FromName is the display name on the From header.
	FromName string
	Timeout  time.Duration
	// InsecureSkipVerify disables certificate checks. Test servers only.
	InsecureSkipVerify bool
}

// SMTPSender delivers mail over SMTP with one connection per message.
type SMTPSender struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{cfg: cfg, now: time.Now}
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(ctx, addr, msg); err != nil {
		return oops.Code("SMTP_SEND_FAILED").
			With("addr", addr).
			With("template", msg.Template).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, addr string, msg Message) error {
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test servers
		MinVersion:         tls.VersionTLS12,
	}

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Port == implicitTLSPort {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	deadline := s.now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if s.cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(s.buildMessage(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *SMTPSender) buildMessage(msg Message) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.From)
	}
	domain := "localhost"
	if _, d, ok := strings.Cut(s.cfg.From, "@"); ok {
		domain = d
	}

	body := strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n")
	return fmt.Appendf(nil,
		"Message-ID: <%s@%s>\r\n"+
			"Date: %s\r\n"+
			"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=\"utf-8\"\r\n"+
			"\r\n"+
			"%s",
		ulid.Make().String(), domain,
		s.now().Format(time.RFC1123Z),
		from,
		msg.To,
		mime.QEncoding.Encode("utf-8", msg.Subject),
		body,
	)
}
