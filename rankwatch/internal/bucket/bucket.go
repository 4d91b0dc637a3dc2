// Package bucket maps a capture instant to the hour-aligned window it
// belongs to. Two captures of the same source within the same local hour
// share a key; downstream consumers group and deduplicate on it.
package bucket

import "time"

// keyLayout renders yyyyMMddHH followed by the offset as ±hhmm.
const keyLayout = "2006010215-0700"

// HourBucket is the derived hour window of a capture.
type HourBucket struct {
	At  time.Time
	Key string
}

// Of converts capturedAt to offset, truncates it to the hour and builds the
// key "{sourceID}|{yyyyMMddHH±hhmm}".
func Of(capturedAt time.Time, offset *time.Location, sourceID string) HourBucket {
	local := capturedAt.In(offset)
	at := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, offset)
	return HourBucket{
		At:  at,
		Key: sourceID + "|" + at.Format(keyLayout),
	}
}

// Same reports whether a and b fall in the same bucket for sourceID.
func Same(a, b time.Time, offset *time.Location, sourceID string) bool {
	return Of(a, offset, sourceID).Key == Of(b, offset, sourceID).Key
}
