// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(t *testing.T, timezone, layout string, now time.Time) *Clock {
	t.Helper()
	c, err := NewClock(timezone, layout)
	assert.Nil(t, err, "NewClock should not fail")
	c.now = func() time.Time { return now }
	return c
}

func TestNewClock(t *testing.T) {
	c, err := NewClock("", "")
	assert.Nil(t, err)
	assert.False(t, c.IsAware(), "empty timezone should yield a naive clock")
	assert.Equal(t, DefaultLayout, c.Layout())

	c, err = NewClock("utc", "")
	assert.Nil(t, err)
	assert.True(t, c.IsAware())
	assert.Equal(t, time.UTC, c.Location())

	c, err = NewClock("Europe/Berlin", time.RFC3339)
	assert.Nil(t, err)
	assert.Equal(t, "Europe/Berlin", c.Location().String())
	assert.Equal(t, time.RFC3339, c.Layout())

	_, err = NewClock("Mars/Olympus_Mons", "")
	assert.NotNil(t, err, "unknown timezones should be rejected")
}

func TestParseOK(t *testing.T) {
	c, _ := NewClock("", "")
	now := c.Now()
	parsed, err := c.Parse(c.Format(now))

	assert.Nil(t, err)
	equal, err := now.Equal(parsed)
	assert.Nil(t, err)
	assert.True(t, equal, "naive round trip should yield the same time (%s vs %s)", now, parsed)
}

func TestParseBadFormats(t *testing.T) {
	c, _ := NewClock("", "")
	nowstr := c.Format(c.Now())

	other, _ := NewClock("", "2006-01-02T15:04:05")
	_, err := other.Parse(nowstr)
	assert.NotNil(t, err, "parsing with a shorter layout should fail")
}

func TestTimezoneOK(t *testing.T) {
	c, _ := NewClock("utc", "")
	layout := "2006-01-02T15:04:05.000000ZMST"
	now := c.Now()
	nowstr := c.FormatLayout(now, layout)
	parsed, err := c.ParseLayout(nowstr, layout)

	assert.Nil(t, err)
	assert.True(t, parsed.IsAware())
	equal, err := now.Equal(parsed)
	assert.Nil(t, err)
	assert.True(t, equal, "aware round trip should yield the same time (%s vs %s)", now, parsed)
}

func TestTimezoneRoundTripNonUTC(t *testing.T) {
	now := time.Date(2024, time.March, 31, 1, 30, 15, 123456789, time.UTC)
	c := fixedClock(t, "America/New_York", "", now)

	n := c.Now()
	assert.Equal(t, 123456000, n.Std().Nanosecond(), "Now should be truncated to microseconds")
	assert.Equal(t, "America/New_York", n.Std().Location().String())

	parsed, err := c.Parse(c.Format(n))
	assert.Nil(t, err)
	equal, err := n.Equal(parsed)
	assert.Nil(t, err)
	assert.True(t, equal)
}

func TestTimezoneError(t *testing.T) {
	aware, _ := NewClock("utc", "")
	naive, _ := NewClock("", "")
	layout := "2006-01-02T15:04:05.000000"

	nowAware := aware.Now()
	nowNaive, err := naive.ParseLayout(aware.FormatLayout(nowAware, layout), layout)
	assert.Nil(t, err)

	_, err = nowAware.After(nowNaive)
	assert.ErrorIs(t, err, ErrMixedAwareness)
	_, err = nowNaive.Before(nowAware)
	assert.ErrorIs(t, err, ErrMixedAwareness)
	_, err = nowNaive.Equal(nowAware)
	assert.ErrorIs(t, err, ErrMixedAwareness)
}

func TestCheckTokenExpiration(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		timezone string
		expires  string
		expected bool
	}{
		{"future keystone format", "", "2024-06-01T13:00:00.000000Z", true},
		{"past keystone format", "", "2024-06-01T11:00:00.000000Z", false},
		{"future keystone format aware clock", "utc", "2024-06-01T13:00:00.000000Z", true},
		{"future RFC3339", "", "2024-06-01T12:30:00Z", true},
		{"offset is honoured", "", "2024-06-01T13:30:00+02:00", false},
		{"naive value presumed UTC", "Europe/Berlin", "2024-06-01T12:00:01.5", true},
		{"exactly now is expired", "", "2024-06-01T12:00:00.000000Z", false},
		{"empty", "", "", false},
		{"garbage", "", "tomorrow", false},
		{"zero time", "", "0001-01-01T00:00:00Z", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := fixedClock(t, tc.timezone, "", now)
			assert.Equal(t, tc.expected, c.CheckTokenExpiration(tc.expires))
		})
	}
}
