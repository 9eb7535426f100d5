package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"release-notifier/pkg/release"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailProvider sends emails via Gmail API.
type GmailProvider struct {
	service *gmail.Service
	logger  *slog.Logger
}

// NewGmailService creates a Gmail API client from service account or OAuth credentials JSON.
// With no JSON it falls back to Application Default Credentials.
func NewGmailService(ctx context.Context, credentialsJSON []byte) (*gmail.Service, error) {
	opts := []option.ClientOption{option.WithScopes(gmail.GmailSendScope)}
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// NewGmailProvider creates a new Gmail email provider. A nil service makes
// every Send fail with *release.MissingCredentialsError.
func NewGmailProvider(service *gmail.Service, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		service: service,
		logger:  logger,
	}
}

// Send sends an email via Gmail API.
// Note: From address is set by Gmail based on the authenticated account.
func (g *GmailProvider) Send(ctx context.Context, msg *Message) error {
	if g.service == nil {
		return &release.MissingCredentialsError{Provider: "gmail", Missing: []string{"credentials"}}
	}
	if msg.To == "" {
		return &release.MissingCredentialsError{Provider: "gmail", Missing: []string{"receiver"}}
	}

	attachments, err := loadAttachments(msg.Attachments)
	if err != nil {
		return err
	}
	raw, err := buildMIME("", msg.To, msg.Subject, msg.HTMLBody, attachments, time.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	g.logger.Info("Gmail API request starting",
		"method", "POST",
		"endpoint", "users.messages.send",
		"to", msg.To,
		"subject", msg.Subject)

	startTime := time.Now()
	_, err = g.service.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	duration := time.Since(startTime)

	if err != nil {
		g.logger.Warn("Gmail API send failed",
			"to", msg.To,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return &release.TransportError{Op: "gmail", Err: err}
	}

	g.logger.Info("Gmail API request completed",
		"endpoint", "users.messages.send",
		"to", msg.To,
		"duration_ms", duration.Milliseconds(),
		"status", "success")
	return nil
}
