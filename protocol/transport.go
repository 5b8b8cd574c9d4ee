package protocol

import "time"

// Receiver is the render loop's view of a transport.
type Receiver interface {
	// CurTime is the receiver's clock in µs. Decoded record times live on
	// this clock.
	CurTime() uint64
	// RecvTimeout waits up to timeout for the next batch. It returns
	// ErrTimeout when nothing arrived and an ErrUnrecoverable wrapped error
	// once the producing side is gone.
	RecvTimeout(timeout time.Duration) ([]LedMsg, error)
	// Recv waits without bound for the next batch.
	Recv() ([]LedMsg, error)
}

// TryRecv polls r without waiting.
func TryRecv(r Receiver) ([]LedMsg, error) {
	return r.RecvTimeout(0)
}

// Sender emits batches to one or more receivers.
type Sender interface {
	// Send transmits msgs. With applyOffset set, every record's Time is
	// read as an offset from the sender's current clock.
	Send(msgs []LedMsg, applyOffset bool) error
	// Time is the sender's view of the receiver clock in µs.
	Time() uint64
}

// ApplyOffset returns a copy of msgs with now added to every record time.
func ApplyOffset(msgs []LedMsg, now uint64) []LedMsg {
	ret := make([]LedMsg, len(msgs))
	for i, msg := range msgs {
		msg.Time += now
		ret[i] = msg
	}
	return ret
}

// BatchBase is the base time senders use for a batch: the first record's
// time, which keeps that record's delta at zero.
func BatchBase(msgs []LedMsg, fallback uint64) uint64 {
	if len(msgs) == 0 {
		return fallback
	}
	return msgs[0].Time
}
