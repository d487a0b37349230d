// Package smtp sends emails through an SMTP relay.
package smtp

import (
	"context"
	"fmt"
	"time"

	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/wneessen/go-mail"
)

// Settings contains the settings for the SMTP relay.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password krypto.Secret
	// RequireTLS makes STARTTLS mandatory, when false the connection is plain text.
	RequireTLS bool
	Timeout    time.Duration
}

// Sender is an email sender that delivers plain text emails over SMTP.
type Sender struct {
	settings Settings
}

// NewSender creates a new sender.
func NewSender(s Settings) *Sender {
	return &Sender{
		settings: s,
	}
}

// Send dials the relay, delivers a single message and closes the connection.
func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, body string) error {
	msg := mail.NewMsg()

	if err := msg.From(string(from)); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}

	if err := msg.To(string(recipient)); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(s.settings.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	err = client.DialAndSendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send email via smtp: %w", err)
	}

	return nil
}

func (s *Sender) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.settings.Port),
	}

	if s.settings.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.settings.Timeout))
	}

	if s.settings.RequireTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.settings.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.settings.Username),
			mail.WithPassword(string(s.settings.Password.SecretValue())),
		)
	}

	return opts
}
