package shared

import "time"

// Month-boundary business rules for deriving a termo's expected parcel count
// from its vigency. They live here so the thresholds are not re-encoded by
// each caller.
const (
	// StartRollForwardDay: a vigency starting on day 27 or later counts from
	// the following month.
	StartRollForwardDay = 27
	// EndRollWindowDays: a vigency ending within the last N days of a month
	// counts through that whole month; otherwise only through the previous one.
	EndRollWindowDays = 5
)

// FirstOfMonth returns midnight on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// LastOfMonth returns the last day of t's month.
func LastOfMonth(t time.Time) time.Time {
	return FirstOfMonth(t).AddDate(0, 1, -1)
}

// AdjustVigencyStart rounds a vigency start to the first day of its effective
// month.
func AdjustVigencyStart(inicio time.Time) time.Time {
	if inicio.Day() >= StartRollForwardDay {
		return FirstOfMonth(inicio).AddDate(0, 1, 0)
	}
	return FirstOfMonth(inicio)
}

// AdjustVigencyEnd rounds a vigency end to the last day of its effective
// month.
func AdjustVigencyEnd(final time.Time) time.Time {
	last := LastOfMonth(final)
	if last.Day()-final.Day() < EndRollWindowDays {
		return last
	}
	return FirstOfMonth(final).AddDate(0, 0, -1)
}

// MonthsBetween counts calendar months from the month of a through the month
// of b, inclusive. Returns 0 when b precedes a.
func MonthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()) + 1
	if months < 0 {
		return 0
	}
	return months
}

// ExpectedParcelMonths applies both vigency adjustments and counts the months
// of the effective window.
func ExpectedParcelMonths(inicio, final time.Time) int {
	return MonthsBetween(AdjustVigencyStart(inicio), AdjustVigencyEnd(final))
}
