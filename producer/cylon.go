package producer

import (
	t "time"

	p "lautenbacher.net/goecp/protocol"
)

const (
	cylonEye        = 1 // red
	cylonBackground = 0 // black
)

// Cylon sweeps one lit element back and forth. Every element is sent on
// each call so the eye keeps its place on the strip.
type Cylon struct {
	elements int
	step     t.Duration
	length   uint8
}

func NewCylon(elements int, step t.Duration) *Cylon {
	return &Cylon{elements: elements, step: step, length: segment(elements)}
}

// Position is the eye's element after elapsed.
func (s *Cylon) Position(elapsed t.Duration) int {
	if s.elements < 2 || s.step <= 0 {
		return 0
	}
	period := 2 * (s.elements - 1)
	k := int(elapsed/s.step) % period
	if k >= s.elements {
		return period - k
	}
	return k
}

func (s *Cylon) Next(elapsed t.Duration) []p.LedMsg {
	eye := s.Position(elapsed)
	msgs := make([]p.LedMsg, s.elements)
	for i := range msgs {
		col := uint8(cylonBackground)
		if i == eye {
			col = cylonEye
		}
		msgs[i] = p.LedMsg{Element: uint8(i), Color: col, Cmd: p.FlatStack(s.length)}
	}
	return msgs
}
