package schedule

import "time"

// DateOnly strips the time-of-day component so every cycle computation works
// on plain calendar dates in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current calendar date in UTC.
func Today() time.Time {
	return DateOnly(time.Now().UTC())
}

// NextBillingDate computes the due date of the cycle after from.
//
// Calendar frequencies step forward by whole months and then clamp the target
// due day to the length of the resulting month, so dueDay=31 lands on Feb 28
// (29 in leap years). CUSTOM steps by customDays days and ignores dueDay.
func NextBillingDate(from time.Time, dueDay int, freq Frequency, customDays int) time.Time {
	from = DateOnly(from)

	if freq == FrequencyCustom {
		return from.AddDate(0, 0, customDays)
	}

	// Anchor on the first of the month before adding months. AddDate on the
	// 31st would normalize into the month after the one we want.
	y, m, _ := from.Date()
	anchor := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, freq.Months(), 0)

	day := dueDay
	if last := daysInMonth(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

// daysInMonth relies on day zero of the following month normalizing to the
// last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween is the whole-day distance from a to b, negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}
