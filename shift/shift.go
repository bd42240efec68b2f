/*
Package shift maps wall-clock instants onto production shifts.

PURPOSE:
  Every counter report, hourly bucket and OEE record is keyed by
  (shift, shiftDate). This package is the single place that knows where
  the shift boundaries are and how the overnight shift wraps past midnight.

SHIFT WINDOWS (plant civil time, UTC+05:30, inclusive, minute resolution):
  shift-1   08:30 - 19:00            shiftDate = local date
  shift-2   20:30 - 23:59            shiftDate = local date
  shift-2   00:00 - 07:00            shiftDate = local date - 1
  none      07:01 - 08:29, 19:01 - 20:29

HOUR ORDERING:
  Inside a shift, buckets are ordered by Hour.Ordinal(): hours before 08
  sort after 23 so the overnight tail of shift-2 (00..07) follows 20..23.
  Shift-1 never contains such hours, so the rule is applied everywhere.

TIME SOURCE:
  Resolver reads "now" from an injected Clock. Tests and demo scenarios
  use ManualClock; the server uses SystemClock.

SEE ALSO:
  - production/reconciler.go: rejects reports outside any window
  - date.go: civil Date and Month types
*/
package shift

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// SHIFT
// =============================================================================

type Shift string

const (
	None   Shift = ""
	First  Shift = "shift-1"
	Second Shift = "shift-2"
)

// All lists the production shifts in day order.
var All = []Shift{First, Second}

// ErrNoActiveShift is returned for instants that fall in a changeover gap.
var ErrNoActiveShift = errors.New("no active shift")

// ErrUnknownShift is returned by Parse for anything but shift-1/shift-2.
var ErrUnknownShift = errors.New("unknown shift")

// Parse accepts "shift-1" or "shift-2".
func Parse(s string) (Shift, error) {
	switch Shift(s) {
	case First, Second:
		return Shift(s), nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownShift, s)
}

func (s Shift) Valid() bool { return s == First || s == Second }
func (s Shift) String() string { return string(s) }

// Hours returns the hour buckets of s in logical (ordinal) order.
func (s Shift) Hours() []Hour {
	switch s {
	case First:
		return hourRange(8, 19)
	case Second:
		return append(hourRange(20, 23), hourRange(0, 7)...)
	}
	return nil
}

func hourRange(from, to int) []Hour {
	out := make([]Hour, 0, to-from+1)
	for h := from; h <= to; h++ {
		out = append(out, Hour(h))
	}
	return out
}

// =============================================================================
// HOUR BUCKET
// =============================================================================

// Hour is a local clock hour 0..23; its label is "HH:00".
type Hour int

// overnightCutoff is the first hour that is NOT part of the overnight tail.
const overnightCutoff = 8

func (h Hour) Label() string { return fmt.Sprintf("%02d:00", int(h)) }
func (h Hour) String() string { return h.Label() }

// Ordinal places overnight hours after 23 so buckets sort in shift order.
func (h Hour) Ordinal() int {
	if h < overnightCutoff {
		return int(h) + 24
	}
	return int(h)
}

// ParseHour accepts "HH:00" or "HH:MM" (minutes ignored).
func ParseHour(label string) (Hour, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(label, "%d:%d", &hh, &mm); err != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid hour label %q", label)
	}
	return Hour(hh), nil
}

// =============================================================================
// WINDOW - Result of resolving an instant
// =============================================================================

// Window places an instant inside a shift. Shift is None when the instant
// falls in a changeover gap; Date and Hour are then the local date/hour.
type Window struct {
	Shift     Shift
	Date      Date
	Hour      Hour
	LocalTime string // "HH:MM"
	At        time.Time
}

func (w Window) Active() bool { return w.Shift.Valid() }

func (w Window) String() string {
	if !w.Active() {
		return fmt.Sprintf("no shift at %s %s", DateOf(w.At), w.LocalTime)
	}
	return fmt.Sprintf("%s %s %s", w.Shift, w.Date, w.Hour.Label())
}

// =============================================================================
// RESOLVER
// =============================================================================

// PlantZone is the fixed civil offset of the plant (UTC+05:30, no DST).
var PlantZone = time.FixedZone("IST", 5*60*60+30*60)

const (
	firstStart   = 8*60 + 30  // 08:30
	firstEnd     = 19 * 60    // 19:00
	secondStart  = 20*60 + 30 // 20:30
	overnightEnd = 7 * 60     // 07:00
)

// Resolver maps instants to shift windows in a fixed zone.
type Resolver struct {
	clock Clock
	loc   *time.Location
}

// NewResolver returns a Resolver for the plant zone. A nil clock means
// SystemClock.
func NewResolver(clock Clock) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Resolver{clock: clock, loc: PlantZone}
}

// Clock returns the resolver's time source.
func (r *Resolver) Clock() Clock { return r.clock }

// Now is the clock's current instant in the plant zone.
func (r *Resolver) Now() time.Time { return r.clock.Now().In(r.loc) }

// Current resolves the clock's current instant.
func (r *Resolver) Current() Window { return r.Resolve(r.clock.Now()) }

// Resolve is total: every instant yields a Window.
func (r *Resolver) Resolve(t time.Time) Window {
	local := t.In(r.loc)
	minute := local.Hour()*60 + local.Minute()
	w := Window{
		Date:      DateOf(local),
		Hour:      Hour(local.Hour()),
		LocalTime: local.Format("15:04"),
		At:        t,
	}

	switch {
	case minute >= firstStart && minute <= firstEnd:
		w.Shift = First
	case minute >= secondStart:
		w.Shift = Second
	case minute <= overnightEnd:
		w.Shift = Second
		w.Date = w.Date.AddDays(-1)
	}
	return w
}

// Resolve uses the plant zone without a clock.
func Resolve(t time.Time) Window { return NewResolver(SystemClock{}).Resolve(t) }

// =============================================================================
// CLOCK
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for tests and scripted scenarios.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock { return &ManualClock{now: t} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// At is a convenience for building plant-local instants.
func At(d Date, hour, minute int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, PlantZone)
}
