package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"release-notifier/pkg/release"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingProvider struct {
	sent []*Message
	err  error
}

func (r *recordingProvider) Send(_ context.Context, msg *Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestSenderSendReleases(t *testing.T) {
	provider := &recordingProvider{}
	sender := New(provider, testLogger(), "me@example.com", "", []string{"media/logo.png"})

	if err := sender.SendReleases(context.Background(), nil); err != nil {
		t.Fatalf("SendReleases(nil) error = %v", err)
	}
	if len(provider.sent) != 0 {
		t.Fatal("SendReleases(nil) should not send anything")
	}

	alerts := []release.Alert{release.Annotate(release.Record{Product: "Air Max 90", AvailableDate: "12-25 at 9:00 a.m."}, time.Now())}
	if err := sender.SendReleases(context.Background(), alerts); err != nil {
		t.Fatalf("SendReleases() error = %v", err)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(provider.sent))
	}
	msg := provider.sent[0]
	if msg.To != "me@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != DefaultSubject {
		t.Errorf("Subject = %q, want %q", msg.Subject, DefaultSubject)
	}
	if !strings.Contains(msg.HTMLBody, "Air Max 90") {
		t.Error("body missing product name")
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0] != "media/logo.png" {
		t.Errorf("Attachments = %v", msg.Attachments)
	}

	provider.err = errors.New("boom")
	if err := sender.SendReleases(context.Background(), alerts); !errors.Is(err, provider.err) {
		t.Errorf("SendReleases() error = %v, want provider error", err)
	}
}

func TestSanitizeEmailHeader(t *testing.T) {
	got := sanitizeEmailHeader("New Releases\r\nBcc: victim@example.com")
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("sanitizeEmailHeader() kept a newline: %q", got)
	}
}

func TestBuildMIMEPlain(t *testing.T) {
	now := time.Date(2025, time.December, 24, 12, 0, 0, 0, time.UTC)
	raw, err := buildMIME("bot@example.com", "me@example.com", "Drops\r\nBcc: x@y.z", "<p>Air Max 90</p>", nil, now)
	if err != nil {
		t.Fatalf("buildMIME() error = %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got := msg.Header.Get("To"); got != "me@example.com" {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("Bcc"); got != "" {
		t.Errorf("header injection produced Bcc: %q", got)
	}
	if ct := msg.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(msg.Body)
	if !strings.Contains(string(body), "Air Max 90") {
		t.Errorf("body = %q", body)
	}
}

func TestBuildMIMEInlineAttachments(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "logo.png")
	pngData := []byte("\x89PNG\r\n\x1a\nfake-image-data")
	if err := os.WriteFile(logo, pngData, 0o600); err != nil {
		t.Fatal(err)
	}

	attachments, err := loadAttachments([]string{logo})
	if err != nil {
		t.Fatalf("loadAttachments() error = %v", err)
	}
	raw, err := buildMIME("", "me@example.com", "Drops", `<img src="cid:logo.png">`, attachments, time.Now())
	if err != nil {
		t.Fatalf("buildMIME() error = %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("ParseMediaType() error = %v", err)
	}
	if mediaType != "multipart/related" {
		t.Fatalf("media type = %q, want multipart/related", mediaType)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	htmlPart, err := mr.NextPart()
	if err != nil {
		t.Fatalf("html part: %v", err)
	}
	if !strings.HasPrefix(htmlPart.Header.Get("Content-Type"), "text/html") {
		t.Errorf("first part Content-Type = %q", htmlPart.Header.Get("Content-Type"))
	}

	imgPart, err := mr.NextPart()
	if err != nil {
		t.Fatalf("image part: %v", err)
	}
	if got := imgPart.Header.Get("Content-ID"); got != "<logo.png>" {
		t.Errorf("Content-ID = %q, want <logo.png>", got)
	}
	if got := imgPart.Header.Get("Content-Type"); !strings.HasPrefix(got, "image/png") {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
	encoded, _ := io.ReadAll(imgPart)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if !bytes.Equal(decoded, pngData) {
		t.Error("image data did not survive encoding")
	}
}

func TestLoadAttachmentsMissingFile(t *testing.T) {
	if _, err := loadAttachments([]string{filepath.Join(t.TempDir(), "nope.png")}); err == nil {
		t.Error("loadAttachments() should fail for a missing file")
	}
}

func TestSMTPProviderMissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		to       string
		missing  []string
	}{
		{"nothing set", "", "", "", []string{"sender", "password", "receiver"}},
		{"no password", "bot@example.com", "", "me@example.com", []string{"password"}},
		{"no receiver", "bot@example.com", "secret", "", []string{"receiver"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSMTPProvider("smtp.gmail.com", 465, tt.user, tt.password, testLogger())
			err := p.Send(context.Background(), &Message{To: tt.to, Subject: "s", HTMLBody: "b"})

			var credErr *release.MissingCredentialsError
			if !errors.As(err, &credErr) {
				t.Fatalf("Send() error = %v, want *release.MissingCredentialsError", err)
			}
			if strings.Join(credErr.Missing, ",") != strings.Join(tt.missing, ",") {
				t.Errorf("Missing = %v, want %v", credErr.Missing, tt.missing)
			}
		})
	}
}

func TestSMTPProviderTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	p := NewSMTPProvider("127.0.0.1", addr.Port, "bot@example.com", "secret", testLogger())
	err = p.Send(context.Background(), &Message{To: "me@example.com", Subject: "s", HTMLBody: "b"})

	var transportErr *release.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Send() error = %v, want *release.TransportError", err)
	}
	if transportErr.Op != "smtp" {
		t.Errorf("Op = %q, want smtp", transportErr.Op)
	}
}

func TestGmailProviderWithoutService(t *testing.T) {
	p := NewGmailProvider(nil, testLogger())
	err := p.Send(context.Background(), &Message{To: "me@example.com"})

	var credErr *release.MissingCredentialsError
	if !errors.As(err, &credErr) {
		t.Errorf("Send() error = %v, want *release.MissingCredentialsError", err)
	}
}

func TestBrevoProviderSend(t *testing.T) {
	dir := t.TempDir()
	banner := filepath.Join(dir, "banner.jpg")
	if err := os.WriteFile(banner, []byte("jpeg-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	var got brevoSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "key-123" {
			t.Errorf("api-key header = %q", r.Header.Get("api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := NewBrevoProvider("key-123", "bot@example.com", "Release Bot", testLogger())
	p.endpoint = srv.URL

	err := p.Send(context.Background(), &Message{
		To:          "me@example.com",
		Subject:     DefaultSubject,
		HTMLBody:    "<p>Air Max 90</p>",
		Attachments: []string{banner},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got.Sender.Email != "bot@example.com" || got.Sender.Name != "Release Bot" {
		t.Errorf("Sender = %+v", got.Sender)
	}
	if len(got.To) != 1 || got.To[0].Email != "me@example.com" {
		t.Errorf("To = %+v", got.To)
	}
	if len(got.Attachment) != 1 || got.Attachment[0].Name != "banner.jpg" {
		t.Fatalf("Attachment = %+v", got.Attachment)
	}
	if got.Attachment[0].Content != base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")) {
		t.Error("attachment content not base64 encoded")
	}
}

func TestBrevoProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewBrevoProvider("key-123", "bot@example.com", "", testLogger())
	p.endpoint = srv.URL
	err := p.Send(context.Background(), &Message{To: "me@example.com"})

	var transportErr *release.TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Send() error = %v, want *release.TransportError", err)
	}

	p = NewBrevoProvider("", "bot@example.com", "", testLogger())
	var credErr *release.MissingCredentialsError
	if err := p.Send(context.Background(), &Message{To: "me@example.com"}); !errors.As(err, &credErr) {
		t.Errorf("Send() without key error = %v, want *release.MissingCredentialsError", err)
	}
}
