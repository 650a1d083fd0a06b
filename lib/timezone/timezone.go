package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Australia/Melbourne")
	if err != nil {
		panic(err)
	}
}

// the portal we scrape lives in AEST/AEDT but our servers don't
// necessarily, which causes disturbances when manipulating dates
// based on <time.Time>.Year()/Month()/Day()/Hour()/...
func Now() time.Time {
	return time.Now().In(Location)
}

// DayRange returns the portal-local midnight bounds of a window spanning
// `past` days before the given moment through `future` days after it.
func DayRange(now time.Time, past, future int) (time.Time, time.Time) {
	local := now.In(Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location)
	return day.AddDate(0, 0, -past), day.AddDate(0, 0, future)
}
