package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Los_Angeles")
	if err != nil {
		panic(err)
	}
}

// force timezone to be in LA since every shelter is there, so "today"
// and "last scraped" read the same regardless of where the process runs.
func Now() time.Time {
	return time.Now().In(Location)
}

// FromUnixMilli converts a stored timestamp back into LA time, zero stays
// zero.
func FromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).In(Location)
}
