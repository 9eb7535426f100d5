package release

import "time"

// Tier is the urgency of a release, derived from time left until it drops.
type Tier int

// Urgency tiers.
const (
	Unknown Tier = iota
	Critical
	Soon
	Upcoming
	Past
)

const (
	criticalHours = 24
	soonHours     = 72
)

// UnknownCountdown is shown in place of a countdown when the date could not be parsed.
const UnknownCountdown = "Unknown release time"

func (t Tier) String() string {
	switch t {
	case Critical:
		return "CRITICAL"
	case Soon:
		return "SOON"
	case Upcoming:
		return "UPCOMING"
	case Past:
		return "PAST"
	default:
		return "UNKNOWN"
	}
}

// Color returns the display color used by the notification renderer.
func (t Tier) Color() string {
	switch t {
	case Critical:
		return "#FF5733" // red
	case Soon:
		return "#FFC300" // yellow
	case Upcoming:
		return "#008000" // green
	case Past:
		return "#A9A9A9" // gray
	default:
		return "#8E44AD"
	}
}

// Classify maps hours remaining to an urgency tier. Bounds are inclusive.
func Classify(hoursRemaining float64, past bool) Tier {
	switch {
	case past:
		return Past
	case hoursRemaining <= criticalHours:
		return Critical
	case hoursRemaining <= soonHours:
		return Soon
	default:
		return Upcoming
	}
}

// Annotate resolves a record's date and classifies it.
// A malformed date yields the Unknown tier with the error attached.
func Annotate(rec Record, now time.Time) Alert {
	parsed, err := Resolve(rec.AvailableDate, now)
	if err != nil {
		return Alert{
			Record: rec,
			Parsed: Parsed{Countdown: UnknownCountdown},
			Tier:   Unknown,
			Err:    err,
		}
	}
	return Alert{
		Record: rec,
		Parsed: parsed,
		Tier:   Classify(parsed.HoursRemaining, parsed.Past),
	}
}
