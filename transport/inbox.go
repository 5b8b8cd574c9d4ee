package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	t "time"

	p "lautenbacher.net/goecp/protocol"
)

// MaxPending bounds the records an Inbox holds for a slow consumer: four
// updates for every element.
const MaxPending = 4 * 256

// Inbox hands decoded batches from transport workers to the render loop.
// Batches put before the consumer takes them are merged in arrival order,
// so a send split over several packets arrives whole. Past MaxPending
// records the oldest are dropped. Put never blocks.
type Inbox struct {
	name string
	ch   chan []p.LedMsg
	// Serializes producers so taking the pending batch and putting back
	// the merged one cannot be raced
	putMutex  sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func NewInbox(name string) *Inbox {
	return &Inbox{
		name:   name,
		ch:     make(chan []p.LedMsg, 1),
		closed: make(chan struct{}),
	}
}

// Put delivers msgs after any batch still pending. It reports false once
// the inbox is closed.
func (b *Inbox) Put(msgs []p.LedMsg) bool {
	b.putMutex.Lock()
	defer b.putMutex.Unlock()

	select {
	case <-b.closed:
		return false
	default:
	}
	select {
	case pending := <-b.ch:
		merged := make([]p.LedMsg, 0, len(pending)+len(msgs))
		msgs = append(append(merged, pending...), msgs...)
	default:
	}
	if over := len(msgs) - MaxPending; over > 0 {
		b.dropped.Add(uint64(over))
		msgs = msgs[over:]
	}
	// only the consumer takes from ch and it is empty here
	b.ch <- msgs
	return true
}

// Close marks the producing side as gone. Batches already pending are still
// delivered, after that receives fail with ErrUnrecoverable.
func (b *Inbox) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Dropped counts records discarded because the consumer fell more than
// MaxPending records behind.
func (b *Inbox) Dropped() uint64 {
	return b.dropped.Load()
}

// Recv waits up to timeout for a batch. A negative timeout waits forever.
func (b *Inbox) Recv(timeout t.Duration) ([]p.LedMsg, error) {
	select {
	case msgs := <-b.ch:
		return msgs, nil
	default:
	}

	var expired <-chan t.Time
	switch {
	case timeout == 0:
		select {
		case <-b.closed:
			return nil, b.gone()
		default:
			return nil, p.ErrTimeout
		}
	case timeout > 0:
		timer := t.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case msgs := <-b.ch:
		return msgs, nil
	case <-b.closed:
		// a final Put may have raced with Close
		select {
		case msgs := <-b.ch:
			return msgs, nil
		default:
			return nil, b.gone()
		}
	case <-expired:
		return nil, p.ErrTimeout
	}
}

func (b *Inbox) gone() error {
	return fmt.Errorf("%s: %w", b.name, p.ErrUnrecoverable)
}
