package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type attachment struct {
	name        string
	contentType string
	data        []byte
}

func loadAttachments(paths []string) ([]attachment, error) {
	out := make([]attachment, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		ct := mime.TypeByExtension(filepath.Ext(p))
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		out = append(out, attachment{name: filepath.Base(p), contentType: ct, data: data})
	}
	return out, nil
}

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// buildMIME assembles an RFC 5322 message. Without attachments the body is a
// single text/html part; otherwise a multipart/related message with inline images.
func buildMIME(from, to, subject, htmlBody string, attachments []attachment, now time.Time) ([]byte, error) {
	var msg bytes.Buffer

	if from != "" {
		msg.WriteString(fmt.Sprintf("From: %s\r\n", sanitizeEmailHeader(from)))
	}
	msg.WriteString(fmt.Sprintf("To: %s\r\n", sanitizeEmailHeader(to)))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeEmailHeader(subject))))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		msg.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuotedPrintable(&msg, htmlBody); err != nil {
			return nil, err
		}
		return msg.Bytes(), nil
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/related; boundary=%q\r\n\r\n", mw.Boundary()))

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	if err := writeQuotedPrintable(htmlPart, htmlBody); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", a.contentType, a.name)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-ID":                {"<" + a.name + ">"},
			"Content-Disposition":       {fmt.Sprintf("inline; filename=%q", a.name)},
		})
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if err := writeBase64Lines(part, a.data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	msg.Write(parts.Bytes())
	return msg.Bytes(), nil
}

func writeQuotedPrintable(w interface{ Write([]byte) (int, error) }, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return qp.Close()
}

// writeBase64Lines writes data as base64 wrapped at 76 columns.
func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(76, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
