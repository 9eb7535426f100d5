// Package email handles sending release notification emails via multiple providers.
package email

import (
	"context"
	"log/slog"

	"release-notifier/pkg/release"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "New Sneaker Releases Found!"

// Message is a single outgoing notification.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	// Attachments are local file paths embedded inline; the body can refer
	// to each one as cid:<basename>.
	Attachments []string
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send delivers msg once. Implementations do not retry.
	Send(ctx context.Context, msg *Message) error
}

// Sender renders release alerts and hands them to a provider.
type Sender struct {
	provider    Provider
	logger      *slog.Logger
	to          string
	subject     string
	attachments []string
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, to, subject string, attachments []string) *Sender {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sender{
		provider:    provider,
		logger:      logger,
		to:          to,
		subject:     subject,
		attachments: attachments,
	}
}

// SendReleases sends one email listing every alert.
func (s *Sender) SendReleases(ctx context.Context, alerts []release.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msg := &Message{
		To:          s.to,
		Subject:     s.subject,
		HTMLBody:    formatReleaseBody(alerts, s.attachments),
		Attachments: s.attachments,
	}

	s.logger.Info("Sending release notification",
		"to", s.to,
		"subject", s.subject,
		"release_count", len(alerts),
		"attachments", len(s.attachments))

	return s.provider.Send(ctx, msg)
}
