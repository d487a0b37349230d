package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, sender, recipient Address, subject, body string) error
}

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// From is the address all emails are sent from.
	From Address
	// BaseURL is used to construct links in emails.
	BaseURL *url.URL
}

// TemplateData is the data every email template is executed with.
type TemplateData struct {
	BaseURL string
	Data    any
}

// Service provides the main functionality for sending emails.
type Service struct {
	renderer Renderer
	sender   Sender
	cfg      ServiceConfig
}

func NewService(renderer Renderer, sender Sender, cfg ServiceConfig) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		cfg:      cfg,
	}
}

// Send renders the subject and body of the named template and sends
// the result to the recipient.
func (s *Service) Send(ctx context.Context, name string, recipient Address, data any) error {
	td := TemplateData{
		Data: data,
	}

	if s.cfg.BaseURL != nil {
		td.BaseURL = strings.TrimSuffix(s.cfg.BaseURL.String(), "/")
	}

	var subject bytes.Buffer
	err := s.renderer.Render(&subject, name, ElementSubject, td)
	if err != nil {
		return fmt.Errorf("failed to render subject of %q: %w", name, err)
	}

	subj := strings.TrimSpace(subject.String())
	if strings.ContainsAny(subj, "\r\n") {
		return fmt.Errorf("subject of %q spans multiple lines", name)
	}

	var body bytes.Buffer
	err = s.renderer.Render(&body, name, ElementBody, td)
	if err != nil {
		return fmt.Errorf("failed to render body of %q: %w", name, err)
	}

	err = s.sender.Send(ctx, s.cfg.From, recipient, subj, strings.TrimSpace(body.String()))
	if err != nil {
		return fmt.Errorf("failed to send %q: %w", name, err)
	}

	return nil
}
