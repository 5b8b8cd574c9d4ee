package controller

import (
	"cmp"
	"log/slog"
	"slices"

	"lautenbacher.net/goecp/color"
	c "lautenbacher.net/goecp/config"
)

// segment is an inclusive span of the physical strip.
type segment struct {
	first, last int
	reverse     bool
	hidden      bool
}

// layout maps the rendered frame onto the physical strip. An empty layout
// is the identity.
type layout []segment

func newLayout(cfgs []c.SegmentConfig, ledsTotal int) layout {
	var l layout
	for _, sc := range cfgs {
		first, last := sc.First, sc.Last
		if first > last {
			slog.Warn("First led index is bigger than last led index, swapping", "first", first, "last", last)
			first, last = last, first
		}
		l = append(l, segment{
			first:   clamp(first, ledsTotal),
			last:    clamp(last, ledsTotal),
			reverse: sc.Reverse,
			hidden:  sc.Hidden,
		})
	}
	slices.SortFunc(l, func(a, b segment) int { return cmp.Compare(a.first, b.first) })
	return l
}

// apply returns frame in physical order. dst must be as long as frame; it
// is only written when the layout is not empty.
func (l layout) apply(dst, frame []color.Pixel) []color.Pixel {
	if len(l) == 0 {
		return frame
	}
	copy(dst, frame)
	for _, s := range l {
		span := dst[s.first : s.last+1]
		if s.hidden {
			clear(span)
		} else if s.reverse {
			slices.Reverse(span)
		}
	}
	return dst
}

func clamp(led, ledsTotal int) int {
	switch {
	case led < 0:
		slog.Warn("Led index is smaller than 0, using 0", "index", led)
		return 0
	case led > ledsTotal-1:
		slog.Warn("Led index is bigger than max index, using max", "index", led, "max", ledsTotal-1)
		return ledsTotal - 1
	default:
		return led
	}
}
