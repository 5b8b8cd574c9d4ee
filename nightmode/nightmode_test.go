package nightmode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Munich
const (
	lat = 48.14
	lon = 11.58
)

func TestIsNight_Midsummer(t *testing.T) {
	tests := []struct {
		at        time.Time
		night     bool
		nextHour  int
		nextIsDay bool
	}{
		// sunrise about 03:12 UTC, sunset about 19:17 UTC
		{time.Date(2024, 6, 21, 1, 0, 0, 0, time.UTC), true, 3, true},
		{time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC), false, 19, false},
		{time.Date(2024, 6, 21, 22, 0, 0, 0, time.UTC), true, 3, true},
	}
	for _, tt := range tests {
		night, next := IsNight(tt.at, lat, lon)
		assert.Equal(t, tt.night, night, tt.at.String())
		assert.True(t, next.After(tt.at))
		assert.Less(t, next.Sub(tt.at), 24*time.Hour)
		assert.Equal(t, tt.nextHour, next.UTC().Hour(), tt.at.String())

		after, _ := IsNight(next.Add(time.Second), lat, lon)
		assert.Equal(t, !tt.nextIsDay, after, "state flips at next")
	}
}

func TestIsNight_FarEast(t *testing.T) {
	// Tokyo: sunrise is on the previous UTC date
	at := time.Date(2024, 6, 21, 3, 0, 0, 0, time.UTC)
	night, next := IsNight(at, 35.68, 139.69)
	assert.False(t, night, "noon in Tokyo")
	assert.True(t, next.After(at))
	assert.Less(t, next.Sub(at), 12*time.Hour)
}

func TestIsNight_Polar(t *testing.T) {
	at := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	_, next := IsNight(at, 78.2, 15.6)
	assert.True(t, next.After(at))
}

func TestScheduleRun(t *testing.T) {
	clock := time.Date(2024, 6, 21, 22, 0, 0, 0, time.UTC)
	s := Schedule{Latitude: lat, Longitude: lon, Now: func() time.Time { return clock }}

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan bool, 4)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func(night bool) { changes <- night }) }()

	select {
	case night := <-changes:
		assert.True(t, night)
	case <-time.After(time.Second):
		t.Fatal("no initial state")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
