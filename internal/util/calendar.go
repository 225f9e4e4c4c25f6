package util

import (
	"time"
	_ "time/tzdata" // exchange locations must resolve on minimal images

	"tradesim/internal/domain"
)

type session struct {
	open, close time.Duration // offsets from local midnight
}

// TradingCalendar provides market-hours awareness for a specific market.
// Sessions run Monday to Friday; exchange holidays are not modelled.
type TradingCalendar struct {
	market   domain.Market
	loc      *time.Location
	sessions []session
}

// NewTradingCalendar creates a TradingCalendar for the given market. Unknown
// markets fall back to the US calendar.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	switch market {
	case domain.MarketCN:
		return &TradingCalendar{
			market: market,
			loc:    mustLoad("Asia/Shanghai"),
			sessions: []session{
				{9*time.Hour + 30*time.Minute, 11*time.Hour + 30*time.Minute},
				{13 * time.Hour, 15 * time.Hour},
			},
		}
	default:
		return &TradingCalendar{
			market:   domain.MarketUS,
			loc:      mustLoad("America/New_York"),
			sessions: []session{{9*time.Hour + 30*time.Minute, 16 * time.Hour}},
		}
	}
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("loading " + name + ": " + err.Error())
	}
	return loc
}

// Market returns the market this calendar describes.
func (tc *TradingCalendar) Market() domain.Market { return tc.market }

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// SessionDate returns the exchange-local calendar date of t as midnight in
// the exchange time zone.
func (tc *TradingCalendar) SessionDate(t time.Time) time.Time {
	l := t.In(tc.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, tc.loc)
}

// SameSession reports whether a and b fall on the same exchange-local date.
func (tc *TradingCalendar) SameSession(a, b time.Time) bool {
	return tc.SessionDate(a).Equal(tc.SessionDate(b))
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	day := tc.SessionDate(t)
	if !isWeekday(day) {
		return false
	}
	for _, s := range tc.sessions {
		open, close := tc.at(day, s.open), tc.at(day, s.close)
		if !t.Before(open) && t.Before(close) {
			return true
		}
	}
	return false
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	return tc.next(t, func(s session) time.Duration { return s.open })
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	return tc.next(t, func(s session) time.Duration { return s.close })
}

func (tc *TradingCalendar) next(t time.Time, edge func(session) time.Duration) time.Time {
	day := tc.SessionDate(t)
	for i := 0; i < 8; i++ {
		if isWeekday(day) {
			for _, s := range tc.sessions {
				if at := tc.at(day, edge(s)); !at.Before(t) {
					return at
				}
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, tc.loc)
	}
	return time.Time{}
}

// at builds the wall-clock time offset from midnight of day, so DST changes
// keep sessions on their local hours.
func (tc *TradingCalendar) at(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, tc.loc)
}
