package services

import (
	"time"
)

const defaultBusinessTimezone = "Asia/Tokyo"

func loadBusinessLocation(loc *time.Location) *time.Location {
	if loc != nil {
		return loc
	}
	tokyo, err := time.LoadLocation(defaultBusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return tokyo
}

// businessDay returns midnight of ts's calendar day in loc.
func businessDay(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// businessDayRange returns the half-open interval [start, end) of ts's day in loc.
func businessDayRange(ts time.Time, loc *time.Location) (time.Time, time.Time) {
	start := businessDay(ts, loc)
	return start, start.AddDate(0, 0, 1)
}

// dayKey formats the business day as ddmmyy.
func dayKey(ts time.Time, loc *time.Location) string {
	return ts.In(loc).Format("020106")
}

// slotKey names the (customer, business day) claim document.
func slotKey(customerID string, deliveryDate time.Time, loc *time.Location) string {
	return customerID + "_" + deliveryDate.In(loc).Format("20060102")
}
