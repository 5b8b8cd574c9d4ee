package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	p "lautenbacher.net/goecp/protocol"
)

func TestLocal_RecvTimeoutBeforeSend(t *testing.T) {
	_, recv := NewLocal(LocalOptions{})
	_, err := recv.RecvTimeout(0)
	assert.ErrorIs(t, err, p.ErrTimeout)
	_, err = p.TryRecv(recv)
	assert.ErrorIs(t, err, p.ErrTimeout)
}

func TestLocal_RecvReturnsSentBatch(t *testing.T) {
	send, recv := NewLocal(LocalOptions{})
	now := send.Time()
	msgs := []p.LedMsg{
		{Time: now, Element: 5, Color: 2, Cmd: p.FlatStack(9)},
		{Time: now + 100, Element: 5, Color: 3, Cmd: p.FlatStack(4)},
		{Time: now + 70000, Element: 6, Color: 1, Cmd: p.Null()},
	}
	assert.NoError(t, send.Send(msgs, false))

	got, err := recv.Recv()
	assert.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func TestLocal_ApplyOffset(t *testing.T) {
	send, recv := NewLocal(LocalOptions{})
	time.Sleep(2 * time.Millisecond)
	before := send.Time()
	assert.NoError(t, send.Send([]p.LedMsg{{Time: 50, Element: 1, Color: 1, Cmd: p.Flat(3)}}, true))
	after := send.Time()

	got, err := recv.RecvTimeout(time.Second)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].Time, before+50)
	assert.LessOrEqual(t, got[0].Time, after+50)
}

func TestLocal_SplitSendArrivesWhole(t *testing.T) {
	tests := []struct {
		name string
		mtu  int
		n    int
	}{
		{"one record per packet", 11, 2},
		{"64 elements over 244 byte packets", 244, 64},
		{"every element", 244, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send, recv := NewLocal(LocalOptions{MTU: tt.mtu})
			now := send.Time()
			msgs := make([]p.LedMsg, tt.n)
			for i := range msgs {
				msgs[i] = p.LedMsg{Time: now, Element: uint8(i), Color: 1, Cmd: p.FlatStack(uint8(i))}
			}
			assert.NoError(t, send.Send(msgs, false))

			got, err := p.TryRecv(recv)
			assert.NoError(t, err)
			assert.Equal(t, msgs, got)
			_, err = p.TryRecv(recv)
			assert.ErrorIs(t, err, p.ErrTimeout)
		})
	}
}

func TestLocal_SlowConsumerGetsEverySend(t *testing.T) {
	send, recv := NewLocal(LocalOptions{MTU: 64})
	now := send.Time()
	var want []p.LedMsg
	for round := 0; round < 3; round++ {
		msgs := make([]p.LedMsg, 20)
		for i := range msgs {
			msgs[i] = p.LedMsg{Time: now + uint64(round), Element: uint8(i), Color: uint8(round), Cmd: p.FlatStack(1)}
		}
		assert.NoError(t, send.Send(msgs, false))
		want = append(want, msgs...)
	}

	got, err := recv.Recv()
	assert.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(0), send.inbox.Dropped())
}

func TestLocal_CloseIsUnrecoverable(t *testing.T) {
	send, recv := NewLocal(LocalOptions{})
	assert.NoError(t, send.Close())
	_, err := recv.RecvTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, p.ErrUnrecoverable)

	err = send.Send([]p.LedMsg{{Time: send.Time(), Element: 1, Cmd: p.Null()}}, false)
	assert.ErrorIs(t, err, p.ErrUnrecoverable)
}
