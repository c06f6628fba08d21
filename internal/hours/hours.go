// Package hours classifies exchange-local wall clock time into the trading
// windows and cadences the engine keys off. All predicates are pure functions
// over a time.Time already converted to exchange time.
package hours

import "time"

// Location returns the exchange timezone (IST). Falls back to a fixed
// UTC+5:30 zone when the tz database is unavailable in the runtime image.
func Location() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+30*60)
}

// InPrepWindow reports whether t falls in the 07:30-15:30 preparation window,
// during which the daily context (levels, asset, broker keys) is loaded.
func InPrepWindow(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	return (h == 7 && m >= 30) || (h > 7 && h < 15) || (h == 15 && m <= 30)
}

// InLiveWindow reports whether t falls in the 09:30-15:12 live window, during
// which candles are fetched and orders may be placed.
func InLiveWindow(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	return (h == 9 && m >= 30) || (h > 9 && h < 15) || (h == 15 && m <= 12)
}

// AtCandleBoundary reports whether t is the first second of a 3-minute
// boundary. A 1s scheduler therefore fires at most one fetch per boundary.
func AtCandleBoundary(t time.Time) bool {
	return t.Minute()%3 == 0 && t.Second() == 0
}

// CredentialRefreshDue reports whether broker keys are due for their periodic
// refresh (every 40 seconds of wall clock).
func CredentialRefreshDue(t time.Time) bool {
	return t.Second()%40 == 0
}

// TradingDate is the calendar-date key daily levels are stored under.
func TradingDate(t time.Time) string {
	return t.Format("2006-01-02")
}
