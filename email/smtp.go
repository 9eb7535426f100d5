package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"release-notifier/pkg/release"
)

// SMTPProvider sends emails over implicit-TLS SMTP (e.g. smtp.gmail.com:465).
type SMTPProvider struct {
	host      string
	port      int
	username  string
	password  string
	logger    *slog.Logger
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewSMTPProvider creates a new SMTP email provider. The username doubles as
// the sender address.
func NewSMTPProvider(host string, port int, username, password string, logger *slog.Logger) *SMTPProvider {
	return &SMTPProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		logger:    logger,
		tlsConfig: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
		timeout:   30 * time.Second,
	}
}

// Send sends an email via SMTP. Nothing is retried.
func (p *SMTPProvider) Send(ctx context.Context, msg *Message) error {
	var missing []string
	if p.username == "" {
		missing = append(missing, "sender")
	}
	if p.password == "" {
		missing = append(missing, "password")
	}
	if msg.To == "" {
		missing = append(missing, "receiver")
	}
	if len(missing) > 0 {
		return &release.MissingCredentialsError{Provider: "smtp", Missing: missing}
	}

	attachments, err := loadAttachments(msg.Attachments)
	if err != nil {
		return err
	}
	raw, err := buildMIME(p.username, msg.To, msg.Subject, msg.HTMLBody, attachments, time.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	p.logger.Info("SMTP send starting", "addr", addr, "to", msg.To, "subject", msg.Subject)

	startTime := time.Now()
	if err := p.deliver(ctx, addr, msg.To, raw); err != nil {
		p.logger.Warn("SMTP send failed",
			"addr", addr,
			"to", msg.To,
			"duration_ms", time.Since(startTime).Milliseconds(),
			"error", err)
		return &release.TransportError{Op: "smtp", URL: addr, Err: err}
	}

	p.logger.Info("SMTP send completed",
		"addr", addr,
		"to", msg.To,
		"duration_ms", time.Since(startTime).Milliseconds(),
		"status", "success")
	return nil
}

func (p *SMTPProvider) deliver(ctx context.Context, addr, to string, raw []byte) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.timeout},
		Config:    p.tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}

	c, err := smtp.NewClient(conn, p.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			p.logger.Debug("SMTP connection close", "error", closeErr)
		}
	}()

	if err := c.Auth(smtp.PlainAuth("", p.username, p.password, p.host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(p.username); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish body: %w", err)
	}
	return c.Quit()
}
