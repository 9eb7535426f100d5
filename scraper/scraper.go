// Package scraper handles fetching and parsing the upcoming releases page.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"release-notifier/pkg/release"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultKeywords are product name fragments that identify sneakers on the launch calendar.
var DefaultKeywords = []string{
	"Low", "High", "Air Force", "Dunk", "Air Jordan", "Retro", "Blazer",
	"VaporMax", "Zoom", "Pegasus", "Trail", "Flyknit", "Zoom Fly", "Infinity Run",
}

// HTTPStatusError indicates a non-200 response from the listing page.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Scraper fetches and parses the release listing.
type Scraper struct {
	client    *http.Client
	logger    *slog.Logger
	sourceURL string
	keywords  []string
}

// NewClient returns an HTTP client with a traced transport.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// New creates a new scraper. An empty keyword list keeps every product.
func New(client *http.Client, sourceURL string, keywords []string, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:    client,
		logger:    logger,
		sourceURL: sourceURL,
		keywords:  keywords,
	}
}

// Fetch downloads the listing page once and returns the matching releases.
// Network and HTTP failures are returned as *release.TransportError.
func (s *Scraper) Fetch(ctx context.Context) (release.Snapshot, error) {
	s.logger.Info("HTTP request starting",
		"method", "GET",
		"url", s.sourceURL,
		"purpose", "fetch_release_listing")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sourceURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Browser-like headers; the launch site serves a stripped page to unknown agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	startTime := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		s.logger.Warn("HTTP request failed",
			"url", s.sourceURL,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &release.TransportError{Op: "fetch", URL: s.sourceURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	s.logger.Info("HTTP request completed",
		"url", s.sourceURL,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"content_length", resp.ContentLength)

	if resp.StatusCode != http.StatusOK {
		return nil, &release.TransportError{
			Op:  "fetch",
			URL: s.sourceURL,
			Err: &HTTPStatusError{URL: s.sourceURL, StatusCode: resp.StatusCode},
		}
	}

	all, err := parsePage(resp.Body, s.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	releases := FilterKeywords(all, s.keywords)
	s.logger.Info("Release listing parsed",
		"url", s.sourceURL,
		"releases_found", len(all),
		"releases_kept", len(releases))

	return releases, nil
}

// FilterKeywords keeps records whose product name contains any keyword.
// Matching is case sensitive. With no keywords every record is kept.
func FilterKeywords(records release.Snapshot, keywords []string) release.Snapshot {
	if len(keywords) == 0 {
		return records
	}
	var out release.Snapshot
	for _, r := range records {
		for _, kw := range keywords {
			if strings.Contains(r.Product, kw) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func parsePage(body io.Reader, pageURL string) (release.Snapshot, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var records release.Snapshot
	doc.Find("figure").Each(func(_ int, fig *goquery.Selection) {
		details := fig.Find("a.ncss-col-sm-8").First()
		product := strings.TrimSpace(details.Find("h3.headline-5").First().Text())
		available := strings.TrimSpace(details.Find("div.available-date-component").First().Text())

		// Entries without a name or a date are promos, not launches.
		if product == "" || available == "" {
			return
		}

		imageURL, _ := fig.Find("img").First().Attr("src")
		href, _ := fig.Find("a[href]").First().Attr("href")

		records = append(records, release.Record{
			Product:       product,
			AvailableDate: available,
			ImageURL:      strings.TrimSpace(imageURL),
			URL:           absoluteURL(base, href),
		})
	})

	if doc.Find("figure").Length() > 0 && len(records) == 0 {
		return nil, errors.New("no release entries found in listing")
	}

	return records, nil
}

// absoluteURL resolves a product path against the listing origin.
func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return base.Scheme + "://" + base.Host + href
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}
	return origin.ResolveReference(ref).String()
}
