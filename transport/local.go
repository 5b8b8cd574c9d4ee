package transport

import (
	"fmt"
	"log/slog"
	"sync"
	t "time"

	p "lautenbacher.net/goecp/protocol"
)

// DefaultLocalMTU is the packet size of the local transport when
// LocalOptions leaves it unset.
const DefaultLocalMTU = 512

type LocalOptions struct {
	MTU int
}

// clock counts µs since its creation.
type clock struct {
	start t.Time
}

func (c clock) now() uint64 {
	return uint64(t.Since(c.start).Microseconds())
}

// LocalSender is the sending half of an in-process transport. Batches are
// encoded into MTU sized packets and decoded again on delivery, so they
// pass through exactly the wire format a radio link would carry.
type LocalSender struct {
	clock clock
	mtu   int
	inbox *Inbox
	// Guards the packet buffer reused by EncodePackets
	sendMutex sync.Mutex
}

// LocalReceiver is the receiving half of an in-process transport.
type LocalReceiver struct {
	clock clock
	inbox *Inbox
}

// NewLocal creates a connected sender/receiver pair sharing one clock that
// starts now.
func NewLocal(opts LocalOptions) (*LocalSender, *LocalReceiver) {
	mtu := opts.MTU
	if mtu == 0 {
		mtu = DefaultLocalMTU
	}
	clk := clock{start: t.Now()}
	inbox := NewInbox("local")
	return &LocalSender{clock: clk, mtu: mtu, inbox: inbox},
		&LocalReceiver{clock: clk, inbox: inbox}
}

func (s *LocalSender) Time() uint64 {
	return s.clock.now()
}

func (s *LocalSender) Send(msgs []p.LedMsg, applyOffset bool) error {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	now := s.clock.now()
	if applyOffset {
		msgs = p.ApplyOffset(msgs, now)
	}
	var batch []p.LedMsg
	err := p.EncodePackets(msgs, s.mtu, p.BatchBase(msgs, now), func(pkt []byte) error {
		decoded, err := p.Decode(pkt, s.clock.now())
		if err != nil {
			return fmt.Errorf("local transport: %w", err)
		}
		batch = append(batch, decoded...)
		return nil
	})
	if err != nil {
		return err
	}
	if !s.inbox.Put(batch) {
		return fmt.Errorf("local transport closed: %w", p.ErrUnrecoverable)
	}
	return nil
}

// Close disconnects the pair. The receiver reports ErrUnrecoverable once
// the last pending batch is taken.
func (s *LocalSender) Close() error {
	slog.Debug("Closing local transport", "dropped", s.inbox.Dropped())
	s.inbox.Close()
	return nil
}

func (r *LocalReceiver) CurTime() uint64 {
	return r.clock.now()
}

func (r *LocalReceiver) RecvTimeout(timeout t.Duration) ([]p.LedMsg, error) {
	return r.inbox.Recv(timeout)
}

func (r *LocalReceiver) Recv() ([]p.LedMsg, error) {
	return r.inbox.Recv(-1)
}

var (
	_ p.Sender   = (*LocalSender)(nil)
	_ p.Receiver = (*LocalReceiver)(nil)
)
