// Package release contains the core domain types for the release notification service.
package release

import (
	"fmt"
	"strings"
	"time"
)

// Record is one scraped product entry.
// Two records are the same release only if every field matches.
type Record struct {
	Product       string // Display name
	AvailableDate string // Raw display string, e.g. "12-25 at 9:00 a.m."
	ImageURL      string // May be empty
	URL           string // Absolute product URL
}

// Snapshot is an ordered collection of records as scraped in one cycle.
type Snapshot []Record

// Columns is the persisted field set of a Record, in file order.
var Columns = []string{"product", "available_date", "image_url", "url"}

// Parsed is the display metadata derived from a record's release date.
type Parsed struct {
	ReleaseAt      time.Time
	Countdown      string
	HoursRemaining float64
	Past           bool
}

// Alert is an added record annotated for the outgoing notification.
type Alert struct {
	Err    error // *MalformedDateError when the date text did not parse
	Parsed Parsed
	Record Record
	Tier   Tier
}

// Changes is the result of comparing two snapshots.
type Changes struct {
	Added   Snapshot
	Removed Snapshot
}

// MalformedDateError indicates a release date string that does not match the expected format.
type MalformedDateError struct {
	Text   string
	Reason string
}

func (e *MalformedDateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unexpected date format %q: %s", e.Text, e.Reason)
	}
	return fmt.Sprintf("unexpected date format %q", e.Text)
}

// MissingCredentialsError indicates that the notification transport is not configured.
type MissingCredentialsError struct {
	Provider string
	Missing  []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("%s credentials are not set: %s", e.Provider, strings.Join(e.Missing, ", "))
}

// TransportError wraps a network failure while fetching the listing or sending mail.
type TransportError struct {
	Err error
	Op  string // "fetch", "smtp", "gmail", "brevo"
	URL string
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
