package util

import "sync"

// Mailbox holds the latest posted value. Posting never blocks; a value
// that was not taken before the next Post is replaced.
type Mailbox[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Post stores v as the latest value.
func (m *Mailbox[T]) Post(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.value = v
	m.pending = true
}

// Take returns the latest value if one was posted since the last Take.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pending {
		var zero T
		return zero, false
	}
	m.pending = false
	return m.value, true
}
