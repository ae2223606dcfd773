// Package notify fans out completion emails to subscribers of titles that
// finished since the previous run.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// ErrUnconfigured is returned when the SMTP transport is missing credentials.
// Callers treat it as "skip notifications", not as a run failure.
var ErrUnconfigured = errors.New("smtp transport not configured")

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig carries the transport settings. Username and Password double as
// the configured/unconfigured switch, matching the env-driven deployment.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether the transport has enough to authenticate.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// SMTPMailer sends plain-text mail over SMTP with STARTTLS.
type SMTPMailer struct {
	cfg    SMTPConfig
	client *mail.Client
}

// NewSMTPMailer builds the transport, or ErrUnconfigured when credentials are
// absent.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if !cfg.Configured() {
		return nil, ErrUnconfigured
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("build smtp client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, client: client}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	return nil
}
