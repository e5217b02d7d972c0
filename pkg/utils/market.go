package utils

import "time"

// NewYorkLocation is the timezone of the US equity market.
var NewYorkLocation *time.Location

func init() {
	var err error
	NewYorkLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST
		NewYorkLocation = time.FixedZone("EST", -5*60*60)
	}
}

// Session is the US equity market session at a point in time.
type Session string

const (
	SessionClosed     Session = "closed"
	SessionPreMarket  Session = "pre_market"
	SessionRegular    Session = "regular"
	SessionAfterHours Session = "after_hours"
)

// SessionAt returns the market session at t. Exchange holidays are not
// modeled; they report the weekday sessions.
func SessionAt(t time.Time) Session {
	now := t.In(NewYorkLocation)
	if !IsTradingDay(now) {
		return SessionClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return SessionPreMarket
	case minutes >= 9*60+30 && minutes < 16*60:
		return SessionRegular
	case minutes >= 16*60 && minutes < 20*60:
		return SessionAfterHours
	default:
		return SessionClosed
	}
}

// IsTradingDay reports whether t falls on a weekday in New York.
func IsTradingDay(t time.Time) bool {
	wd := t.In(NewYorkLocation).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsMarketOpen returns true if the regular session is open.
func IsMarketOpen() bool {
	return SessionAt(time.Now()) == SessionRegular
}

// LastTradingDay returns midnight (New York) of the most recent weekday on or
// before t. Daily bars stamped on or after it are current.
func LastTradingDay(t time.Time) time.Time {
	day := t.In(NewYorkLocation)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, NewYorkLocation)
	for !IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}
