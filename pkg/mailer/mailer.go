// Package mailer delivers field-dispatch emails. Without SMTP settings it
// degrades to a dry-run that logs the full message instead of sending it.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/drak0niii/Launch-CTRL/pkg/config"
)

// Mailer sends dispatch mail over SMTP, or logs it in dry-run mode.
type Mailer struct {
	cfg    config.MailerConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *slog.Logger
}

// New creates a mailer. Dry-run mode is selected by an empty SMTP host.
func New(cfg config.MailerConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: slog.With("component", "mailer"),
	}
}

// DryRun reports whether messages are logged instead of sent.
func (m *Mailer) DryRun() bool {
	return m.cfg.SMTPHost == ""
}

// Send delivers one message to the configured dispatch recipient.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.DryRun() {
		m.logger.Info("Dispatch email (dry-run)",
			"to", m.cfg.To, "subject", subject, "body", body)
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", m.cfg.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	port := m.cfg.SMTPPort
	if port == "" {
		port = "587"
	}
	addr := m.cfg.SMTPHost + ":" + port
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{m.cfg.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send dispatch email: %w", err)
	}
	m.logger.Info("Dispatch email sent", "to", m.cfg.To, "subject", subject)
	return nil
}
