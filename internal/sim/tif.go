package sim

import (
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/util"
)

// GTCMaxAge is how long a good-till-cancelled order stays open.
const GTCMaxAge = 90 * 24 * time.Hour

// expired reports whether an accepted order's time in force has run out at t.
func expired(s domain.OrderState, cal *util.TradingCalendar, t time.Time) bool {
	tif := s.Order.TIF
	switch tif.Policy {
	case domain.TIFDay:
		return cal != nil && !cal.SameSession(s.OpenedAt, t)
	case domain.TIFGoodTillDate:
		return t.After(tif.Until)
	case domain.TIFImmediateOrCancel, domain.TIFFillOrKill:
		return t.After(s.OpenedAt)
	default:
		return t.Sub(s.OpenedAt) > GTCMaxAge
	}
}
