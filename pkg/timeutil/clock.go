// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package timeutil wraps the datetime handling used for Keystone token
// timestamps. A Clock is either naive (no timezone configured) or aware (all
// values it produces carry the configured zone), and Time values remember
// which of the two they are so that mixing them is reported instead of
// silently compared.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for keystone.timezone

	"github.com/sapcc/go-bits/logg"
)

// DefaultLayout is the timestamp format Keystone uses for token expiries.
const DefaultLayout = "2006-01-02T15:04:05.000000Z"

// ErrMixedAwareness is returned when an aware and a naive Time are compared.
var ErrMixedAwareness = errors.New("can't compare offset-naive and offset-aware datetimes")

// expiryLayouts are tried after the configured layout when parsing token expiries.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// Time is a point in time that is either aware (bound to a timezone) or naive.
type Time struct {
	t     time.Time
	aware bool
}

// Aware returns a Time bound to the location of t.
func Aware(t time.Time) Time {
	return Time{t: t, aware: true}
}

// Naive returns a Time that only carries the wall clock fields of t.
func Naive(t time.Time) Time {
	return Time{t: wallClock(t, time.UTC)}
}

// IsAware reports whether the value carries a timezone.
func (t Time) IsAware() bool {
	return t.aware
}

// IsZero reports whether t is the zero time.
func (t Time) IsZero() bool {
	return t.t.IsZero()
}

// Std returns the underlying time.Time. Naive values are returned in UTC.
func (t Time) Std() time.Time {
	return t.t
}

// Before reports whether t is before u.
func (t Time) Before(u Time) (bool, error) {
	c, err := t.compare(u)
	return c < 0, err
}

// After reports whether t is after u.
func (t Time) After(u Time) (bool, error) {
	c, err := t.compare(u)
	return c > 0, err
}

// Equal reports whether t and u denote the same instant.
func (t Time) Equal(u Time) (bool, error) {
	c, err := t.compare(u)
	return c == 0, err
}

func (t Time) compare(u Time) (int, error) {
	if t.aware != u.aware {
		return 0, ErrMixedAwareness
	}
	return t.t.Compare(u.t), nil
}

func (t Time) String() string {
	if t.aware {
		return t.t.Format(time.RFC3339Nano)
	}
	return t.t.Format("2006-01-02T15:04:05.999999999")
}

// Clock produces and parses Time values according to the configured timezone
// and layout.
type Clock struct {
	zone   *time.Location
	layout string
	now    func() time.Time
}

// NewClock builds a clock. An empty timezone yields a naive clock, an empty
// layout selects DefaultLayout.
func NewClock(timezone, layout string) (*Clock, error) {
	c := &Clock{
		layout: layout,
		now:    time.Now,
	}
	if c.layout == "" {
		c.layout = DefaultLayout
	}

	switch strings.ToLower(strings.TrimSpace(timezone)) {
	case "":
	case "utc":
		c.zone = time.UTC
	default:
		zone, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		c.zone = zone
	}

	return c, nil
}

// IsAware reports whether the clock has a timezone configured.
func (c *Clock) IsAware() bool {
	return c.zone != nil
}

// Layout returns the configured datetime layout.
func (c *Clock) Layout() string {
	return c.layout
}

// Location returns the configured timezone, or nil for naive clocks.
func (c *Clock) Location() *time.Location {
	return c.zone
}

// Now returns the current wall clock time, truncated to microseconds. The
// result is aware iff the clock is.
func (c *Clock) Now() Time {
	n := c.now().Truncate(time.Microsecond)
	if c.zone == nil {
		return Naive(n)
	}
	return Aware(wallClock(n, c.zone))
}

// Parse parses value with the configured layout.
func (c *Clock) Parse(value string) (Time, error) {
	return c.ParseLayout(value, c.layout)
}

// ParseLayout parses value with the given layout. The wall clock fields of the
// result are bound to the configured timezone, if any.
func (c *Clock) ParseLayout(value, layout string) (Time, error) {
	if layout == "" {
		layout = c.layout
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return Time{}, err
	}
	if c.zone == nil {
		return Naive(t), nil
	}
	return Aware(wallClock(t, c.zone)), nil
}

// Format formats t with the configured layout.
func (c *Clock) Format(t Time) string {
	return c.FormatLayout(t, c.layout)
}

// FormatLayout formats t with the given layout.
func (c *Clock) FormatLayout(t Time, layout string) string {
	if layout == "" {
		layout = c.layout
	}
	return t.t.Format(layout)
}

// CheckTokenExpiration reports whether a token with the given expiry
// timestamp is still valid. Timestamps without offset are taken as UTC.
// Empty or unparseable values count as expired.
func (c *Clock) CheckTokenExpiration(expires string) bool {
	expiry, ok := c.parseExpiry(expires)
	if !ok {
		logg.Debug("could not parse token expiry %q, treating token as expired", expires)
		return false
	}

	valid, err := expiry.After(Aware(c.now().UTC()))
	if err != nil {
		logg.Error("comparing token expiry: %s", err)
		return false
	}
	return valid
}

func (c *Clock) parseExpiry(value string) (Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Time{}, false
	}
	for _, layout := range append([]string{c.layout}, expiryLayouts...) {
		t, err := time.Parse(layout, value)
		if err == nil && !t.IsZero() {
			return Aware(t), true
		}
	}
	return Time{}, false
}

// wallClock keeps the calendar fields of t and binds them to loc.
func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
