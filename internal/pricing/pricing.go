// Package pricing projects catalog base prices into effective prices for
// a given instant. Functions here are pure: same item, schedule and clock
// always yield the same quote, so cart totals and fulfillment totals
// computed from the same inputs cannot drift.
package pricing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type State int

const (
	// Available means the item can be bought at Quote.Price.
	Available State = iota
	// Surcharged means the item is still purchasable, at a late-purchase
	// premium already folded into Quote.Price.
	Surcharged
	// Expired means the item can no longer be bought. Quote.Price is
	// zero-valued and must not be shown or charged.
	Expired
)

const (
	ReasonBasePrice      = "base_price"
	ReasonOffPeak        = "off_peak"
	ReasonPeak           = "peak"
	ReasonGraceSurcharge = "grace_surcharge"
	ReasonFree           = "free"
	ReasonEventEnded     = "event_ended"
)

type Quote struct {
	State  State
	Price  decimal.Decimal
	Reason string
}

func available(price decimal.Decimal, reason string) Quote {
	return Quote{State: Available, Price: price, Reason: reason}
}

// Schedule is a club's weekly open window in venue-local civil time.
type Schedule struct {
	OpenDays  []time.Weekday
	OpenMins  int // minutes since midnight
	CloseMins int // may be smaller than OpenMins when closing past midnight
}

// ParseSchedule builds a Schedule from the catalog's stored form:
// a comma-separated weekday list ("4,5,6", 0=Sunday) and "HH:MM" times.
func ParseSchedule(openDays, openTime, closeTime string) (Schedule, error) {
	var s Schedule
	for _, part := range strings.Split(openDays, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return Schedule{}, fmt.Errorf("invalid open day %q", part)
		}
		s.OpenDays = append(s.OpenDays, time.Weekday(d))
	}
	var err error
	if s.OpenMins, err = parseClock(openTime); err != nil {
		return Schedule{}, err
	}
	if s.CloseMins, err = parseClock(closeTime); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Engine carries the event grace-window parameters. Everything else is
// per-call input.
type Engine struct {
	grace     time.Duration
	surcharge decimal.Decimal // multiplier, e.g. 1.3 for +30%
}

func NewEngine(grace time.Duration, surchargePct float64) *Engine {
	return &Engine{
		grace:     grace,
		surcharge: decimal.NewFromInt(1).Add(decimal.NewFromFloat(surchargePct).Div(decimal.NewFromInt(100))),
	}
}

// ForOpenHours prices a non-event item against the club's open window.
// The curve splits the open window into thirds: early 0.9x, middle base,
// late 1.15x. Outside the window, and on closed days, the base price
// applies (the item is still being sold for a future visit).
func (e *Engine) ForOpenHours(baseCents int64, sched Schedule, enabled bool, now time.Time) Quote {
	base := decimal.NewFromInt(baseCents)
	if !enabled {
		return available(base, ReasonBasePrice)
	}

	offset, ok := minutesIntoWindow(sched, now)
	if !ok {
		return available(base, ReasonBasePrice)
	}

	length := windowLength(sched)
	switch {
	case offset*3 < length:
		return available(base.Mul(decimal.NewFromFloat(0.9)), ReasonOffPeak)
	case offset*3 >= length*2:
		return available(base.Mul(decimal.NewFromFloat(1.15)), ReasonPeak)
	default:
		return available(base, ReasonBasePrice)
	}
}

// ForEvent prices an event ticket against the event's start time. Before
// the start the base price applies; within the grace window after start a
// surcharge applies; past the grace window the quote is Expired and the
// caller must surface an "event already started" error, never a price.
func (e *Engine) ForEvent(baseCents int64, startsAt, now time.Time) Quote {
	base := decimal.NewFromInt(baseCents)
	switch {
	case now.Before(startsAt):
		return available(base, ReasonBasePrice)
	case now.Sub(startsAt) < e.grace:
		return Quote{State: Surcharged, Price: base.Mul(e.surcharge), Reason: ReasonGraceSurcharge}
	default:
		return Quote{State: Expired, Reason: ReasonEventEnded}
	}
}

// SurchargedPrice is the grace-window price for a base amount. Used by
// fulfillment when a payment approved inside the grace window is
// confirmed after it: the approved order must not fail on the boundary.
func (e *Engine) SurchargedPrice(baseCents int64) decimal.Decimal {
	return decimal.NewFromInt(baseCents).Mul(e.surcharge)
}

// ForFree prices a free-category ticket. Free tickets never receive
// dynamic pricing; date binding is enforced by the cart validator.
func (e *Engine) ForFree() Quote {
	return available(decimal.Zero, ReasonFree)
}

func windowLength(s Schedule) int {
	if s.CloseMins > s.OpenMins {
		return s.CloseMins - s.OpenMins
	}
	return 24*60 - s.OpenMins + s.CloseMins
}

// minutesIntoWindow reports how far `now` sits inside the open window,
// handling windows that cross midnight (the post-midnight tail belongs
// to the previous calendar day's session).
func minutesIntoWindow(s Schedule, now time.Time) (int, bool) {
	mins := now.Hour()*60 + now.Minute()
	day := now.Weekday()

	if s.CloseMins > s.OpenMins {
		if mins >= s.OpenMins && mins < s.CloseMins && openOn(s, day) {
			return mins - s.OpenMins, true
		}
		return 0, false
	}
	// window crosses midnight
	if mins >= s.OpenMins && openOn(s, day) {
		return mins - s.OpenMins, true
	}
	if mins < s.CloseMins && openOn(s, (day+6)%7) {
		return 24*60 - s.OpenMins + mins, true
	}
	return 0, false
}

func openOn(s Schedule, day time.Weekday) bool {
	for _, d := range s.OpenDays {
		if d == day {
			return true
		}
	}
	return false
}
