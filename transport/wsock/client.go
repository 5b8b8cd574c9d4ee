package wsock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	t "time"

	"github.com/gorilla/websocket"
	p "lautenbacher.net/goecp/protocol"
	"lautenbacher.net/goecp/transport"
)

const syncTimeout = 2 * t.Second

type ClientOptions struct {
	URL string
	MTU int
	// ResyncInterval re-runs the clock sync periodically; 0 disables it.
	ResyncInterval t.Duration
}

// Client is a Sender writing to one Server. Its clock follows the
// server's, so record times it produces are on the receiver's clock.
type Client struct {
	conn  *websocket.Conn
	start t.Time
	mtu   int
	// server clock minus local clock, µs
	offset atomic.Int64
	// gorilla allows one concurrent writer
	writeMutex sync.Mutex
	resync     *transport.Worker
}

// Dial connects to the server and synchronizes the clock once before
// returning.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("can't connect to %s: %w", opts.URL, err)
	}
	c := &Client{conn: conn, start: t.Now(), mtu: opts.MTU}
	if err := c.sync(); err != nil {
		conn.Close()
		return nil, err
	}
	if opts.ResyncInterval > 0 {
		c.resync = transport.Spawn("wsock resync", c.resyncLoop(opts.ResyncInterval))
	}
	slog.Info("Connected to receiver", "url", opts.URL, "offset_us", c.offset.Load())
	return c, nil
}

func (c *Client) local() int64 {
	return t.Since(c.start).Microseconds()
}

// sync runs one NTP style exchange: the server clock is assumed to have
// been read halfway through the round trip.
func (c *Client) sync() error {
	sent := c.local()
	c.writeMutex.Lock()
	err := c.conn.WriteMessage(websocket.TextMessage, []byte(syncRequest))
	c.writeMutex.Unlock()
	if err != nil {
		return fmt.Errorf("clock sync request: %w", err)
	}

	c.conn.SetReadDeadline(t.Now().Add(syncTimeout))
	defer c.conn.SetReadDeadline(t.Time{})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("clock sync reply: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		server, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("clock sync reply %q: %w", data, p.ErrBadInput)
		}
		received := c.local()
		rtt := received - sent
		c.offset.Store(int64(server) + rtt/2 - received)
		slog.Debug("Clock synced", "rtt_us", rtt, "offset_us", c.offset.Load())
		return nil
	}
}

func (c *Client) resyncLoop(interval t.Duration) transport.WorkFunc {
	return func(ctl <-chan transport.Signal) error {
		ticker := t.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case sig := <-ctl:
				if sig == transport.Terminate {
					return nil
				}
			case <-ticker.C:
				if err := c.sync(); err != nil {
					slog.Warn("Clock resync failed", "error", err)
					return err
				}
			}
		}
	}
}

// Time is the receiver's clock as seen from here.
func (c *Client) Time() uint64 {
	return uint64(c.local() + c.offset.Load())
}

// Send fails with ErrUnrecoverable once the resync worker has given up,
// since the clock can no longer be trusted.
func (c *Client) Send(msgs []p.LedMsg, applyOffset bool) error {
	if c.resync != nil && !c.resync.Alive() {
		return fmt.Errorf("clock resync stopped: %w", p.ErrUnrecoverable)
	}
	now := c.Time()
	if applyOffset {
		msgs = p.ApplyOffset(msgs, now)
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return p.EncodePackets(msgs, c.mtu, p.BatchBase(msgs, now), func(pkt []byte) error {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
			return fmt.Errorf("send packet: %w", err)
		}
		return nil
	})
}

// Close ends the resync worker and the connection.
func (c *Client) Close() error {
	if c.resync != nil {
		c.resync.Terminate()
	}
	c.writeMutex.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMutex.Unlock()
	return c.conn.Close()
}

var _ p.Sender = (*Client)(nil)
