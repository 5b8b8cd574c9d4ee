// Package renderer turns decoded element updates into LED frames. A single
// goroutine owns all of its state: the record buffer, the palette and the
// frame. Changes from other goroutines arrive through a Settings mailbox.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	t "time"

	"lautenbacher.net/goecp/color"
	p "lautenbacher.net/goecp/protocol"
	u "lautenbacher.net/goecp/util"
)

// ExpiryWindow is how long a record stays relevant, in µs. A record whose
// age reaches it no longer contributes to the frame.
const ExpiryWindow = 5_000_000

const (
	DefaultTargetFPS     = 60
	DefaultStatsInterval = 5 * t.Second
)

// Controller is the LED strip the renderer draws on. Leds is the frame
// buffer the renderer writes into; Render pushes it out to the hardware.
type Controller interface {
	Leds() []color.Pixel
	Render() error
}

// Settings are the parts of the renderer that may change while it runs.
type Settings struct {
	Palette color.ColorMap
	Blend   uint8
}

type Options struct {
	TargetFPS float64
	Blend     uint8
	// Palette defaults to color.DefaultColorMap when nil.
	Palette       *color.ColorMap
	Verbose       bool
	StatsInterval t.Duration
	// Settings, when set, is checked once per tick.
	Settings *u.Mailbox[Settings]
}

type Renderer struct {
	recv     p.Receiver
	ctl      Controller
	period   t.Duration
	palette  color.ColorMap
	blend    uint8
	settings *u.Mailbox[Settings]
	verbose  bool
	stats    *stats

	// records in arrival order
	buffer []p.LedMsg
	// index into buffer of each element's active record, -1 for none
	active [256]int
	// composited frame before blending
	target []color.Pixel
	// start of the next tick; zero outside Run
	next t.Time
}

func New(recv p.Receiver, ctl Controller, opts Options) *Renderer {
	fps := opts.TargetFPS
	if fps <= 0 {
		fps = DefaultTargetFPS
	}
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	palette := color.DefaultColorMap()
	if opts.Palette != nil {
		palette = *opts.Palette
	}
	r := &Renderer{
		recv:     recv,
		ctl:      ctl,
		period:   t.Duration(float64(t.Second) / fps),
		palette:  palette,
		blend:    opts.Blend,
		settings: opts.Settings,
		verbose:  opts.Verbose,
		stats:    newStats(interval),
		target:   make([]color.Pixel, len(ctl.Leds())),
	}
	for i := range r.active {
		r.active[i] = -1
	}
	return r
}

// Run ticks at the target frame rate until ctx is done or a tick fails.
// Ticks are scheduled against the start time, so a slow tick shortens the
// following sleep instead of shifting every later tick.
func (r *Renderer) Run(ctx context.Context) error {
	start := t.Now()
	r.stats.reset(start)
	slog.Info("Renderer started", "fps", float64(t.Second)/float64(r.period), "leds", len(r.target))

	timer := t.NewTimer(r.period)
	defer timer.Stop()

	for count := int64(1); ; count++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.next = start.Add(t.Duration(count) * r.period)

		tickStart := t.Now()
		if err := r.Tick(); err != nil {
			slog.Error("Renderer stopped", "error", err)
			return err
		}
		r.stats.tick(tickStart, t.Since(tickStart))
		if r.verbose {
			r.stats.report(tickStart)
		}

		if sleep := t.Until(r.next); sleep > 0 {
			timer.Reset(sleep)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Tick runs intake, resolve, composite, blend and garbage collection once.
// Any returned error is fatal for the render loop.
func (r *Renderer) Tick() error {
	if err := r.intake(); err != nil {
		return err
	}
	if s, ok := r.takeSettings(); ok {
		r.palette = s.Palette
		r.blend = s.Blend
	}

	now := r.recv.CurTime()
	lo, hi := r.resolve(now)
	if err := r.composite(lo, hi); err != nil {
		return err
	}
	if r.blendInto(r.ctl.Leds()) {
		if err := r.ctl.Render(); err != nil {
			return fmt.Errorf("render frame: %w", err)
		}
		r.stats.rendered()
	}
	r.collect(now)
	return nil
}

func (r *Renderer) takeSettings() (Settings, bool) {
	if r.settings == nil {
		return Settings{}, false
	}
	return r.settings.Take()
}

// intake drains every batch that is ready, skipping bad ones. Only when
// nothing at all was ready, it waits once for the rest of the tick.
func (r *Renderer) intake() error {
	ready := 0
	for {
		msgs, err := p.TryRecv(r.recv)
		if errors.Is(err, p.ErrTimeout) {
			break
		}
		ready++
		if err != nil {
			if !p.IsTransient(err) {
				return err
			}
			r.logDropped(err)
			continue
		}
		r.buffer = append(r.buffer, msgs...)
	}
	if ready > 0 {
		return nil
	}

	wait := t.Duration(0)
	if !r.next.IsZero() {
		wait = max(t.Until(r.next), 0)
	}
	msgs, err := r.recv.RecvTimeout(wait)
	if err != nil {
		if !p.IsTransient(err) {
			return err
		}
		r.logDropped(err)
		return nil
	}
	r.buffer = append(r.buffer, msgs...)
	return nil
}

func (r *Renderer) logDropped(err error) {
	if errors.Is(err, p.ErrBadInput) {
		slog.Debug("Dropped batch", "error", err)
	}
}

// resolve picks the active record per element: the one with the greatest
// time among those younger than ExpiryWindow, the later arrival on a tie.
// It returns the range of elements that have one, hi < lo when none.
func (r *Renderer) resolve(now uint64) (lo, hi int) {
	for i := range r.active {
		r.active[i] = -1
	}
	lo, hi = len(r.active), -1
	for i, msg := range r.buffer {
		if now-msg.Time >= ExpiryWindow {
			continue
		}
		e := int(msg.Element)
		if cur := r.active[e]; cur >= 0 && r.buffer[cur].Time > msg.Time {
			continue
		}
		r.active[e] = i
		lo = min(lo, e)
		hi = max(hi, e)
	}
	return lo, hi
}

// composite renders the active records into r.target. Elements are laid
// out in ascending order; a FlatStack(n) takes (n+1)/256 of the strip.
func (r *Renderer) composite(lo, hi int) error {
	clear(r.target)
	leds := len(r.target)
	cursor := 0
	for e := lo; e <= hi; e++ {
		idx := r.active[e]
		if idx < 0 {
			continue
		}
		msg := r.buffer[idx]
		switch msg.Cmd.Kind {
		case p.CmdFlatStack:
			n := int(math.Round(float64(int(msg.Cmd.Value)+1) * float64(leds) / 256))
			end := min(cursor+n, leds)
			px := r.palette[msg.Color].BGRA()
			for i := cursor; i < end; i++ {
				r.target[i].AddSaturating(px)
			}
			cursor = end
		default:
			return fmt.Errorf("element %d: %s: %w", e, msg.Cmd, p.ErrUnimplementedCommand)
		}
	}
	return nil
}

// blendInto moves frame toward r.target and reports whether any LED
// changed.
func (r *Renderer) blendInto(frame []color.Pixel) bool {
	changed := false
	for i := range frame {
		for ch := range frame[i] {
			old := frame[i][ch]
			v := blendChannel(old, r.target[i][ch], r.blend)
			if v != old {
				frame[i][ch] = v
				changed = true
			}
		}
	}
	return changed
}

// blendChannel smooths exponentially. When integer rounding would leave
// the value where it is, it steps by one so the target is always reached.
func blendChannel(old, target, blend uint8) uint8 {
	if old == target || blend == 0 {
		return target
	}
	v := (int(old)*int(blend) + int(target)) / (int(blend) + 1)
	if v == int(old) {
		if target > old {
			return old + 1
		}
		return old - 1
	}
	return uint8(v)
}

// collect keeps the active records and those due within ExpiryWindow,
// compacting the buffer in place.
func (r *Renderer) collect(now uint64) {
	kept := 0
	for i, msg := range r.buffer {
		pending := msg.Time > now && msg.Time-now < ExpiryWindow
		if r.active[msg.Element] == i || pending {
			r.buffer[kept] = msg
			kept++
		}
	}
	clear(r.buffer[kept:])
	r.buffer = r.buffer[:kept]
}

// Pending is the number of buffered records.
func (r *Renderer) Pending() int {
	return len(r.buffer)
}
