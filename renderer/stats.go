package renderer

import (
	"log/slog"
	t "time"

	"github.com/gammazero/deque"
)

// stats keeps a one second window of tick start times for the current
// frame rate, plus totals for the lifetime rate and tick durations.
type stats struct {
	interval   t.Duration
	started    t.Time
	lastReport t.Time
	window     deque.Deque[t.Time]
	ticks      int64
	renders    int64
	// since the last report
	sumTick t.Duration
	maxTick t.Duration
	nTick   int64
}

func newStats(interval t.Duration) *stats {
	now := t.Now()
	return &stats{interval: interval, started: now, lastReport: now}
}

func (s *stats) reset(now t.Time) {
	*s = stats{interval: s.interval, started: now, lastReport: now}
}

func (s *stats) tick(start t.Time, took t.Duration) {
	s.ticks++
	s.window.PushBack(start)
	for s.window.Len() > 0 && start.Sub(s.window.Front()) > t.Second {
		s.window.PopFront()
	}
	s.sumTick += took
	s.maxTick = max(s.maxTick, took)
	s.nTick++
}

func (s *stats) rendered() {
	s.renders++
}

// fps is the number of ticks in the last second.
func (s *stats) fps() int {
	return s.window.Len()
}

func (s *stats) lifetimeFPS(now t.Time) float64 {
	elapsed := now.Sub(s.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.ticks) / elapsed
}

// report logs once per interval.
func (s *stats) report(now t.Time) {
	if now.Sub(s.lastReport) < s.interval {
		return
	}
	var avg t.Duration
	if s.nTick > 0 {
		avg = s.sumTick / t.Duration(s.nTick)
	}
	slog.Info("Renderer stats",
		"fps", s.fps(),
		"lifetime_fps", s.lifetimeFPS(now),
		"avg_tick", avg,
		"max_tick", s.maxTick,
		"renders", s.renders)
	s.lastReport = now
	s.sumTick, s.maxTick, s.nTick = 0, 0, 0
}
