package producer

import (
	"math/rand/v2"
	t "time"

	p "lautenbacher.net/goecp/protocol"
)

// level meter colors from the default palette
const (
	stackLow  = 4 // green
	stackMid  = 3 // yellow
	stackHigh = 1 // red
)

// Stack is a level meter: each element is a bar whose length wanders
// randomly between zero and its share of the strip.
type Stack struct {
	rng    *rand.Rand
	levels []int
	limit  int
}

func NewStack(elements int, rng *rand.Rand) *Stack {
	return &Stack{
		rng:    rng,
		levels: make([]int, elements),
		limit:  int(segment(elements)),
	}
}

func (s *Stack) Next(t.Duration) []p.LedMsg {
	msgs := make([]p.LedMsg, len(s.levels))
	for i := range s.levels {
		s.levels[i] = min(max(s.levels[i]+s.rng.IntN(9)-4, 0), s.limit)
		msgs[i] = p.LedMsg{
			Element: uint8(i),
			Color:   s.colorFor(s.levels[i]),
			Cmd:     p.FlatStack(uint8(s.levels[i])),
		}
	}
	return msgs
}

func (s *Stack) colorFor(level int) uint8 {
	switch {
	case 3*level >= 2*s.limit:
		return stackHigh
	case 3*level >= s.limit:
		return stackMid
	default:
		return stackLow
	}
}
