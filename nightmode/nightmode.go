// Package nightmode tells day from night at a location, so the receiver
// can dim the palette after sunset.
package nightmode

import (
	"context"
	"log/slog"
	"sort"
	t "time"

	"github.com/nathan-osman/go-sunrise"
)

type event struct {
	at   t.Time
	rise bool
}

// events returns the sunrises and sunsets from the day before to the day
// after now, in order. Depending on the longitude the UTC date of a sunset
// can be earlier than that of the matching sunrise, so a single day is not
// enough.
func events(now t.Time, lat, lon float64) []event {
	var ret []event
	for d := -1; d <= 1; d++ {
		day := now.UTC().AddDate(0, 0, d)
		rise, set := sunrise.SunriseSunset(lat, lon, day.Year(), day.Month(), day.Day())
		if !rise.IsZero() {
			ret = append(ret, event{at: rise, rise: true})
		}
		if !set.IsZero() {
			ret = append(ret, event{at: set})
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].at.Before(ret[j].at) })
	return ret
}

// IsNight reports whether the sun is down at now and when that changes
// next. Where the sun neither rises nor sets (polar day or night) it is
// treated as day and next is a day later.
func IsNight(now t.Time, lat, lon float64) (bool, t.Time) {
	evs := events(now, lat, lon)
	night := false
	for _, ev := range evs {
		if ev.at.After(now) {
			return night, ev.at
		}
		night = !ev.rise
	}
	return night, now.Add(24 * t.Hour)
}

// Schedule follows day and night at a fixed location.
type Schedule struct {
	Latitude  float64
	Longitude float64
	// Now defaults to time.Now.
	Now func() t.Time
}

// Run calls onChange with the current state right away and again at every
// sunrise and sunset until ctx is done.
func (s Schedule) Run(ctx context.Context, onChange func(night bool)) error {
	now := s.Now
	if now == nil {
		now = t.Now
	}
	timer := t.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	last, first := false, true
	for {
		night, next := IsNight(now(), s.Latitude, s.Longitude)
		if first || night != last {
			slog.Info("Night mode", "night", night, "next_change", next.Local())
			onChange(night)
			last, first = night, false
		}
		// a second past the event so the next check lands on the far side
		timer.Reset(next.Sub(now()) + t.Second)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
