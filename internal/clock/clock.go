// Package clock provides the single authoritative time source shared by
// session generation and scan validation.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current instant
type Clock interface {
	Now() time.Time
}

// FixedOffset reports wall-clock time in one fixed UTC offset.
// Only the zone changes; the instant is the server's real time.
type FixedOffset struct {
	loc *time.Location
}

// NewFixedOffset creates a clock for the given offset east of UTC
func NewFixedOffset(offset time.Duration) FixedOffset {
	return FixedOffset{loc: time.FixedZone(zoneName(offset), int(offset/time.Second))}
}

// Now returns the current time in the configured zone
func (c FixedOffset) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the zone used by Now
func (c FixedOffset) Location() *time.Location {
	return c.loc
}

func zoneName(offset time.Duration) string {
	if offset == 0 {
		return "UTC"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	if m == 0 {
		return fmt.Sprintf("UTC%s%d", sign, h)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, h, m)
}

// Fake is a manually driven clock for tests
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake stopped at t
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the fake's current time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the fake to t
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the fake forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
