// Package markethours holds the US equity session clock: the regular trading
// session, the end-of-day liquidation cutoff, and weekday-aware settlement dates.
//
// All checks read the wall clock of the timestamp they are given. Price
// sources zone candle timestamps to the exchange timezone (Eastern) before
// they reach the engine.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Eastern is the exchange timezone for US equities.
var Eastern = mustLoad("America/New_York")

// Regular session and liquidation cutoff, exchange local time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0

	// Positions still open at or after this time are liquidated.
	DayCloseHour   = 15
	DayCloseMinute = 55

	// Sale proceeds settle this many calendar days after the trade,
	// rolled forward past weekends.
	SettlementDays = 2
)

// LoadLocation resolves a timezone name, defaulting to Eastern when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return Eastern, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// IsMarketOpen returns true if t falls within the regular session
// [09:30:00, 16:00:00) on a Monday through Friday.
func IsMarketOpen(t time.Time) bool {
	if !IsWeekday(t) {
		return false
	}
	s := secondOfDay(t)
	return s >= OpenHour*3600+OpenMinute*60 && s < CloseHour*3600+CloseMinute*60
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// AtOrAfterDayClose reports whether t is at or past the 15:55:00 liquidation cutoff.
func AtOrAfterDayClose(t time.Time) bool {
	return secondOfDay(t) >= DayCloseHour*3600+DayCloseMinute*60
}

// Date truncates t to midnight of its calendar day in its own location.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SettlementDate returns the first weekday at least SettlementDays calendar
// days after the trade date of t.
func SettlementDate(t time.Time) time.Time {
	d := Date(t)
	d = time.Date(d.Year(), d.Month(), d.Day()+SettlementDays, 0, 0, 0, 0, d.Location())
	for !IsWeekday(d) {
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, d.Location())
	}
	return d
}

// OnOrAfter reports whether the calendar date of t is on or after date d.
func OnOrAfter(t, d time.Time) bool {
	return !Date(t.In(d.Location())).Before(d)
}

// TodayClose returns the session close (16:00) on t's calendar day.
func TodayClose(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), CloseHour, CloseMinute, 0, 0, t.Location())
}

// StatusString returns a human-readable market status for t.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(TodayClose(t).Sub(t)))
	}
	return fmt.Sprintf("Market Closed — %s %s", t.Weekday().String()[:3], t.Format("15:04"))
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}
