// Package transport holds the plumbing shared by all transports: a worker
// goroutine with an explicit control channel, the bounded inbox that hands
// decoded batches to the render loop, and an in-process reference
// transport.
package transport

import (
	"log/slog"
	"sync"
)

// Signal is sent to a worker over its control channel.
type Signal int

const (
	// Alive asks nothing of the worker; workers ignore it.
	Alive Signal = iota
	// Terminate asks the worker to return as soon as possible.
	Terminate
)

func (s Signal) String() string {
	if s == Terminate {
		return "Terminate"
	}
	return "Alive"
}

// WorkFunc is the body of a worker. It must select on ctl at every
// blocking wait and return once it receives Terminate.
type WorkFunc func(ctl <-chan Signal) error

// Worker runs a WorkFunc in its own goroutine. The owner stops it with
// Terminate, which only returns after the goroutine has exited.
type Worker struct {
	name string
	ctl  chan Signal
	done chan struct{}
	// Guards sending on ctl after the worker has gone
	ctlMutex sync.Mutex
	err      error
}

// Spawn starts fn and returns its handle.
func Spawn(name string, fn WorkFunc) *Worker {
	w := &Worker{
		name: name,
		ctl:  make(chan Signal, 1),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		w.err = fn(w.ctl)
		if w.err != nil {
			slog.Debug("Worker exited with error", "worker", w.name, "error", w.err)
		}
	}()
	return w
}

// Alive checks the worker without blocking. A false result is final.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
	}
	w.ctlMutex.Lock()
	defer w.ctlMutex.Unlock()
	select {
	case w.ctl <- Alive:
	default:
		// a signal is already queued, the worker has not consumed it yet
	}
	return true
}

// Terminate signals the worker and joins it. It is safe to call more than
// once and on a worker that already returned.
func (w *Worker) Terminate() error {
	w.ctlMutex.Lock()
	for sent := false; !sent; {
		select {
		case w.ctl <- Terminate:
			sent = true
		case <-w.done:
			sent = true
		default:
			// drop a queued Alive so Terminate fits
			select {
			case <-w.ctl:
			default:
			}
		}
	}
	w.ctlMutex.Unlock()
	<-w.done
	return w.err
}

// Done is closed once the worker returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err is the worker's return value, valid after Done is closed.
func (w *Worker) Err() error {
	<-w.done
	return w.err
}

func (w *Worker) String() string {
	return w.name
}
