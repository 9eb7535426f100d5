package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AlreadyDropped is the countdown shown for releases whose time has passed.
const AlreadyDropped = "Already Dropped"

var releaseDateRegex = regexp.MustCompile(`(\d{1,2}-\d{1,2}) at (\d{1,2}:\d{2} [a,p].m.)`)

// Resolve parses a release date such as "12-25 at 9:00 a.m." relative to now.
//
// The listing never shows a year, so the release is placed in now's calendar
// year and location. A December date read in January therefore resolves to
// the past.
func Resolve(text string, now time.Time) (Parsed, error) {
	m := releaseDateRegex.FindStringSubmatch(text)
	if m == nil {
		return Parsed{}, &MalformedDateError{Text: text}
	}
	datePart, timePart := m[1], strings.ToLower(strings.ReplaceAll(m[2], ".", ""))

	// The "3" layout accepts hour 0; a 12-hour clock runs 1 to 12.
	hourText, _, _ := strings.Cut(timePart, ":")
	if hour, err := strconv.Atoi(hourText); err != nil || hour < 1 || hour > 12 {
		return Parsed{}, &MalformedDateError{Text: text, Reason: "hour out of range: " + hourText}
	}

	releaseAt, err := time.ParseInLocation("2006-1-2 3:04 pm",
		fmt.Sprintf("%d-%s %s", now.Year(), datePart, timePart), now.Location())
	if err != nil {
		return Parsed{}, &MalformedDateError{Text: text, Reason: err.Error()}
	}

	left := releaseAt.Sub(now)
	if left < 0 {
		return Parsed{
			ReleaseAt: releaseAt,
			Countdown: AlreadyDropped,
			Past:      true,
		}, nil
	}

	return Parsed{
		ReleaseAt:      releaseAt,
		Countdown:      countdown(left),
		HoursRemaining: left.Hours(),
	}, nil
}

// countdown renders a non-negative duration, truncating each unit.
func countdown(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	hours := secs % 86400 / 3600
	minutes := secs % 3600 / 60
	return fmt.Sprintf("%d days %d hours %d minutes", days, hours, minutes)
}
