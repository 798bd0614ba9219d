package model

import "time"

// TimestampLayout renders UTC instants with a fixed six-digit microsecond
// fraction and an explicit +00:00 offset, the shape the backend stores verbatim.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// wholeSecondLayout is used when the instant has no microsecond component.
const wholeSecondLayout = "2006-01-02T15:04:05-07:00"

// FormatTimestamp converts t to UTC and formats it. The fraction is either
// absent or exactly six digits.
func FormatTimestamp(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(wholeSecondLayout)
	}
	return t.Format(TimestampLayout)
}

// TimestampOrNow formats at, or now() when at is the zero time.
// now is evaluated on every call so defaults never go stale.
func TimestampOrNow(at time.Time, now func() time.Time) string {
	if at.IsZero() {
		if now == nil {
			now = time.Now
		}
		at = now()
	}
	return FormatTimestamp(at)
}
