package fragment

import "time"

// TimestampLayout is the fixed-width UTC form used for Created and Updated.
// Every timestamp has the same length, so string order is chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// now is the clock used for timestamps. Tests replace it.
var now = time.Now

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp produced by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// currentTimestamp returns the current time in TimestampLayout.
func currentTimestamp() string {
	return FormatTimestamp(now())
}

// laterTimestamp returns the current time, or prev if the clock reads
// earlier than prev. Updated never moves backwards.
func laterTimestamp(prev string) string {
	ts := currentTimestamp()
	if ts < prev {
		return prev
	}
	return ts
}
