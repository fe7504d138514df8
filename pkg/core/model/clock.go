package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used for every calendar date stored or parsed by the app
const DateLayout = "2006-01-02"

// Clock is a time of day expressed as minutes after midnight.
// 24:00 (MaxClock) is allowed so a window can run to the end of the day.
type Clock int

const MaxClock Clock = 24 * 60

// ParseClock parses "HH:MM" (or "H:MM") into a Clock
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: bad hour: %w", s, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: bad minute: %w", s, err)
	}
	if len(parts[1]) != 2 || minutes < 0 || minutes > 59 || hours < 0 || hours > 24 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}

	c := Clock(hours*60 + minutes)
	if c > MaxClock {
		return 0, fmt.Errorf("invalid time %q: after 24:00", s)
	}
	return c, nil
}

// MustParseClock is ParseClock for constants and tests
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the clock as HH:MM
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is a half-open time range [Start, End) within a single day
type Window struct {
	Start Clock
	End   Clock
}

// NewWindow parses a window from two HH:MM strings
func NewWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

// MustWindow is NewWindow for tests and constants
func MustWindow(start, end string) Window {
	w, err := NewWindow(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

// Valid reports whether the window has positive length
func (w Window) Valid() bool {
	return w.Start >= 0 && w.End <= MaxClock && w.Start < w.End
}

// Overlaps uses half-open semantics: touching windows do not overlap
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Contains reports whether o lies entirely inside w
func (w Window) Contains(o Window) bool {
	return w.Start <= o.Start && o.End <= w.End
}

// Duration returns the length of the window
func (w Window) Duration() time.Duration {
	if w.End <= w.Start {
		return 0
	}
	return time.Duration(w.End-w.Start) * time.Minute
}

func (w Window) String() string {
	return fmt.Sprintf("[%s,%s)", w.Start, w.End)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DateOf truncates t to its calendar date at UTC midnight, keeping t's wall-clock day
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate compares calendar dates ignoring time of day and location
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDate formats a date with DateLayout, returning "" for the zero time
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
