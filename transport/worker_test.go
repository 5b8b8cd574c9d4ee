package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func loopUntilTerminate(seen chan<- Signal) WorkFunc {
	return func(ctl <-chan Signal) error {
		for sig := range ctl {
			if seen != nil {
				seen <- sig
			}
			if sig == Terminate {
				return nil
			}
		}
		return nil
	}
}

func TestWorker_TerminateJoins(t *testing.T) {
	exited := make(chan struct{})
	w := Spawn("test", func(ctl <-chan Signal) error {
		defer close(exited)
		return loopUntilTerminate(nil)(ctl)
	})
	assert.True(t, w.Alive())

	assert.NoError(t, w.Terminate())
	select {
	case <-exited:
	default:
		t.Fatal("Terminate returned before the worker exited")
	}
	assert.False(t, w.Alive())
	// a second Terminate is harmless
	assert.NoError(t, w.Terminate())
}

func TestWorker_AliveIsIgnoredByLoop(t *testing.T) {
	seen := make(chan Signal, 4)
	w := Spawn("test", loopUntilTerminate(seen))
	assert.True(t, w.Alive())
	assert.Equal(t, Alive, <-seen)
	assert.NoError(t, w.Terminate())
	assert.Equal(t, Terminate, <-seen)
}

func TestWorker_DeadWorkerDetected(t *testing.T) {
	boom := errors.New("boom")
	w := Spawn("test", func(ctl <-chan Signal) error { return boom })
	<-w.Done()
	assert.False(t, w.Alive())
	assert.ErrorIs(t, w.Err(), boom)
	assert.ErrorIs(t, w.Terminate(), boom)
}

func TestWorker_TerminateWithQueuedAlive(t *testing.T) {
	release := make(chan struct{})
	w := Spawn("busy", func(ctl <-chan Signal) error {
		<-release
		return loopUntilTerminate(nil)(ctl)
	})
	assert.True(t, w.Alive())
	assert.True(t, w.Alive(), "Alive does not block on a full control channel")

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	assert.NoError(t, w.Terminate())
	assert.False(t, w.Alive())
}
