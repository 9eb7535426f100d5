package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"release-notifier/pkg/release"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoProvider sends emails via Brevo (formerly Sendinblue) API.
type BrevoProvider struct {
	apiKey   string
	fromAddr string
	fromName string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewBrevoProvider creates a new Brevo email provider.
func NewBrevoProvider(apiKey, fromAddr, fromName string, logger *slog.Logger) *BrevoProvider {
	return &BrevoProvider{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		endpoint: brevoEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// brevoSendRequest represents the Brevo API send email request.
type brevoSendRequest struct {
	Sender     brevoContact      `json:"sender"`
	To         []brevoContact    `json:"to"`
	Subject    string            `json:"subject"`
	HTML       string            `json:"htmlContent"`
	Attachment []brevoAttachment `json:"attachment,omitempty"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoAttachment struct {
	Content string `json:"content"` // base64
	Name    string `json:"name"`
}

// Send sends an email via Brevo API.
func (b *BrevoProvider) Send(ctx context.Context, msg *Message) error {
	var missing []string
	if b.apiKey == "" {
		missing = append(missing, "api key")
	}
	if b.fromAddr == "" {
		missing = append(missing, "sender")
	}
	if msg.To == "" {
		missing = append(missing, "receiver")
	}
	if len(missing) > 0 {
		return &release.MissingCredentialsError{Provider: "brevo", Missing: missing}
	}

	attachments, err := loadAttachments(msg.Attachments)
	if err != nil {
		return err
	}

	reqBody := brevoSendRequest{
		Sender: brevoContact{
			Email: b.fromAddr,
			Name:  b.fromName,
		},
		To: []brevoContact{
			{Email: sanitizeEmailHeader(msg.To)},
		},
		Subject: sanitizeEmailHeader(msg.Subject),
		HTML:    msg.HTMLBody,
	}
	for _, a := range attachments {
		reqBody.Attachment = append(reqBody.Attachment, brevoAttachment{
			Content: base64.StdEncoding.EncodeToString(a.data),
			Name:    a.name,
		})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	b.logger.Info("Brevo API request starting",
		"method", "POST",
		"endpoint", "smtp/email",
		"to", msg.To,
		"subject", msg.Subject)

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", b.apiKey)

	resp, err := b.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		b.logger.Warn("Brevo API request failed",
			"to", msg.To,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return &release.TransportError{Op: "brevo", URL: b.endpoint, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.logger.Warn("Brevo API returned non-2xx status",
			"status_code", resp.StatusCode,
			"to", msg.To)
		return &release.TransportError{Op: "brevo", URL: b.endpoint, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	b.logger.Info("Brevo API request completed",
		"endpoint", "smtp/email",
		"to", msg.To,
		"duration_ms", duration.Milliseconds(),
		"status", "success")
	return nil
}
