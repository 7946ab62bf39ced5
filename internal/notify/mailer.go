package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Message is one outgoing HTML e-mail.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer dials the SMTP server for every message.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Host == "" {
		return fmt.Errorf("SMTP_HOST not configured")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients for %q", msg.Subject)
	}

	email := gomail.NewMessage()
	email.SetHeader("From", m.cfg.From)
	email.SetHeader("To", msg.To...)
	email.SetHeader("Subject", msg.Subject)
	email.SetBody("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(email); err != nil {
		return fmt.Errorf("failed to send e-mail: %w", err)
	}
	return nil
}
