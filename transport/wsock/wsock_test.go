package wsock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	p "lautenbacher.net/goecp/protocol"
)

func startServer(t *testing.T) (*Server, string) {
	handlers := map[string]http.Handler{
		"/hello": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "hi")
		}),
	}
	srv, err := Listen(ServerOptions{Addr: "127.0.0.1:0", Path: "/ecp", Handlers: handlers})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, srv.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, ClientOptions{URL: "ws://" + addr + "/ecp", MTU: 20, ResyncInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return c
}

func TestSendAndReceive(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)
	defer c.Close()

	now := c.Time()
	msgs := []p.LedMsg{
		{Time: now, Element: 5, Color: 2, Cmd: p.FlatStack(9)},
		{Time: now + 100, Element: 5, Color: 3, Cmd: p.FlatStack(4)},
	}
	assert.NoError(t, c.Send(msgs, false))

	got, err := srv.RecvTimeout(2 * time.Second)
	assert.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func TestSplitSendArrivesWhole(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)
	defer c.Close()

	now := c.Time()
	msgs := make([]p.LedMsg, 64)
	for i := range msgs {
		msgs[i] = p.LedMsg{Time: now, Element: uint8(i), Color: 1, Cmd: p.FlatStack(uint8(i))}
	}
	assert.NoError(t, c.Send(msgs, false), "64 records need 16 packets of 20 bytes")

	var got []p.LedMsg
	for len(got) < len(msgs) {
		batch, err := srv.RecvTimeout(2 * time.Second)
		if !assert.NoError(t, err) {
			break
		}
		got = append(got, batch...)
	}
	assert.Equal(t, msgs, got)
	dropped, bad := srv.Stats()
	assert.Zero(t, dropped)
	assert.Zero(t, bad)
}

func TestClockSync(t *testing.T) {
	srv, addr := startServer(t)
	time.Sleep(30 * time.Millisecond)
	c := dial(t, addr)
	defer c.Close()

	// let at least one periodic resync run
	time.Sleep(120 * time.Millisecond)
	diff := int64(c.Time()) - int64(srv.CurTime())
	if diff < 0 {
		diff = -diff
	}
	assert.Less(t, diff, int64(50_000), "client clock follows the receiver within 50ms")
}

func TestBadPacketIsDropped(t *testing.T) {
	srv, addr := startServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ecp", addr), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	// base 0, one FlatStack(7) record with a zero delta
	good := []byte{0, 0, 0, 0, 0x20, 1, 1, 7}
	assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, good))

	got, err := srv.RecvTimeout(2 * time.Second)
	assert.NoError(t, err, "the connection survives bad input")
	assert.Len(t, got, 1)
	assert.Equal(t, p.FlatStack(7), got[0].Cmd)

	_, bad := srv.Stats()
	assert.Equal(t, uint64(1), bad)
}

func TestExtraHandlersMounted(t *testing.T) {
	_, addr := startServer(t)
	resp, err := http.Get("http://" + addr + "/hello")
	assert.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hi", string(body))
}

func TestCloseIsUnrecoverable(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)
	defer c.Close()

	assert.NoError(t, srv.Close())
	_, err := srv.RecvTimeout(100 * time.Millisecond)
	assert.ErrorIs(t, err, p.ErrUnrecoverable)
}

func TestSendFailsOnceResyncStops(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)
	defer c.Close()

	assert.NoError(t, srv.Close())
	msg := []p.LedMsg{{Element: 1, Color: 1, Cmd: p.FlatStack(1)}}
	assert.Eventually(t, func() bool {
		return errors.Is(c.Send(msg, true), p.ErrUnrecoverable)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClientDisconnectKeepsServer(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)
	assert.NoError(t, c.Close())

	_, err := srv.RecvTimeout(50 * time.Millisecond)
	assert.ErrorIs(t, err, p.ErrTimeout, "a sender leaving is not fatal for the receiver")

	c2 := dial(t, addr)
	defer c2.Close()
	assert.NoError(t, c2.Send([]p.LedMsg{{Time: c2.Time(), Element: 1, Color: 1, Cmd: p.FlatStack(1)}}, false))
	_, err = srv.RecvTimeout(2 * time.Second)
	assert.NoError(t, err)
}
