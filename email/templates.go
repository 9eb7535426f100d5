package email

import (
	"fmt"
	"path/filepath"
	"strings"

	"release-notifier/pkg/release"

	"github.com/microcosm-cc/bluemonday"
)

// cardPolicy is applied to every release card. Scraped values end up in
// attributes, so only http(s) and cid URLs survive and no script can be injected.
var cardPolicy = newCardPolicy()

func newCardPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "p", "strong", "span", "hr", "br")
	p.AllowAttrs("class").Globally()
	p.AllowStyles("color").OnElements("p", "span")

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("width").Matching(bluemonday.Integer).OnElements("img")

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https", "cid")
	return p
}

func formatReleaseBody(alerts []release.Alert, attachments []string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".release { margin-bottom: 20px; }\n")
	b.WriteString(".product { font-size: 1.2em; }\n")
	b.WriteString(".countdown { font-weight: 600; }\n")
	b.WriteString(".tier { color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a { color: #111; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".tier { color: #a0a0a0; }\n")
	b.WriteString("a { color: #e0e0e0; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	if len(attachments) > 0 {
		var banner strings.Builder
		banner.WriteString("<div class=\"banner\">\n")
		for _, path := range attachments {
			name := filepath.Base(path)
			banner.WriteString(fmt.Sprintf("<img src=\"cid:%s\" alt=\"%s\">\n", escapeHTML(name), escapeHTML(name)))
		}
		banner.WriteString("</div>\n")
		b.WriteString(cardPolicy.Sanitize(banner.String()))
	}

	b.WriteString("<h1>New Sneaker Releases</h1>\n")

	for _, alert := range alerts {
		b.WriteString(cardPolicy.Sanitize(formatCard(alert)))
		b.WriteString("\n")
	}

	b.WriteString("</body>\n</html>")
	return b.String()
}

func formatCard(alert release.Alert) string {
	r := alert.Record

	var b strings.Builder
	b.WriteString("<div class=\"release\">\n")
	if r.ImageURL != "" {
		b.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"%s\" width=\"150\">\n", escapeHTML(r.ImageURL), escapeHTML(r.Product)))
	}
	b.WriteString(fmt.Sprintf("<p class=\"product\"><strong>%s</strong></p>\n", escapeHTML(r.Product)))
	b.WriteString(fmt.Sprintf("<p>Release Date: %s</p>\n", escapeHTML(r.AvailableDate)))
	b.WriteString(fmt.Sprintf("<p class=\"countdown\" style=\"color: %s\">%s</p>\n", alert.Tier.Color(), escapeHTML(alert.Parsed.Countdown)))
	b.WriteString(fmt.Sprintf("<p class=\"tier\">Urgency: %s</p>\n", alert.Tier))
	if r.URL != "" {
		b.WriteString(fmt.Sprintf("<a href=\"%s\">View Product</a>\n", escapeHTML(r.URL)))
	}
	b.WriteString("</div>\n<hr>")
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
