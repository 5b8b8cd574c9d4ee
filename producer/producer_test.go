package producer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	c "lautenbacher.net/goecp/config"
	p "lautenbacher.net/goecp/protocol"
)

func TestCylonPosition(t *testing.T) {
	s := NewCylon(4, 10*time.Millisecond)
	var got []int
	for i := 0; i < 8; i++ {
		got = append(got, s.Position(time.Duration(i)*10*time.Millisecond))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 2, 1, 0, 1}, got)
	assert.Equal(t, 0, NewCylon(1, time.Millisecond).Position(time.Hour))
}

func TestCylonNext(t *testing.T) {
	s := NewCylon(8, 10*time.Millisecond)
	msgs := s.Next(20 * time.Millisecond)
	assert.Len(t, msgs, 8)
	for i, m := range msgs {
		assert.Equal(t, uint8(i), m.Element)
		assert.Equal(t, p.FlatStack(31), m.Cmd, "8 elements split 256 units")
		assert.Equal(t, uint64(0), m.Time)
		if i == 2 {
			assert.Equal(t, uint8(cylonEye), m.Color)
		} else {
			assert.Equal(t, uint8(cylonBackground), m.Color)
		}
	}
}

func TestStackStaysInRange(t *testing.T) {
	s := NewStack(16, rand.New(rand.NewPCG(1, 2)))
	for i := 0; i < 500; i++ {
		for _, m := range s.Next(0) {
			assert.LessOrEqual(t, int(m.Cmd.Value), 15)
			assert.Contains(t, []uint8{stackLow, stackMid, stackHigh}, m.Color)
		}
	}
	moved := false
	for _, l := range s.levels {
		moved = moved || l > 0
	}
	assert.True(t, moved)
}

func TestStackColors(t *testing.T) {
	s := NewStack(1, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, uint8(stackLow), s.colorFor(0))
	assert.Equal(t, uint8(stackMid), s.colorFor(100))
	assert.Equal(t, uint8(stackHigh), s.colorFor(255))
}

func TestNew(t *testing.T) {
	cfg := c.Default().Sender
	cfg.Producer = "cylon"
	prod, err := New(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &Cylon{}, prod)

	cfg.Producer = "Stack"
	prod, err = New(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &Stack{}, prod)

	cfg.Producer = "plasma"
	_, err = New(cfg)
	assert.Error(t, err)
}

type recordingSender struct {
	mu      sync.Mutex
	batches int
	offset  []bool
	err     error
}

func (r *recordingSender) Send(msgs []p.LedMsg, applyOffset bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	r.offset = append(r.offset, applyOffset)
	return r.err
}

func (r *recordingSender) Time() uint64 { return 0 }

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

func TestRun(t *testing.T) {
	sender := &recordingSender{err: fmt.Errorf("busy: %w", p.ErrTimeout)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, sender, NewCylon(4, time.Millisecond), 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled, "transient send errors do not stop the loop")
	assert.NotContains(t, sender.offset, false, "producer times are offsets")
}

func TestRun_Unrecoverable(t *testing.T) {
	gone := fmt.Errorf("closed: %w", p.ErrUnrecoverable)
	sender := &recordingSender{err: gone}
	err := Run(context.Background(), sender, NewCylon(4, time.Millisecond), time.Millisecond)
	assert.True(t, errors.Is(err, p.ErrUnrecoverable))
}
