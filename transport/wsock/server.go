// Package wsock carries batches over WebSocket binary messages. Each binary
// message is one wire packet. Text messages are used for clock sync: the
// sender writes "sync" and the receiver answers with its clock in µs.
package wsock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	t "time"

	"github.com/gorilla/websocket"
	p "lautenbacher.net/goecp/protocol"
	"lautenbacher.net/goecp/transport"
)

const syncRequest = "sync"

type ServerOptions struct {
	// Addr is the listen address, e.g. ":8080". Port 0 picks a free port.
	Addr string
	// Path is where the WebSocket endpoint is mounted.
	Path string
	// Handlers are mounted next to the endpoint, keyed by path.
	Handlers map[string]http.Handler
}

// Server is a Receiver fed by any number of WebSocket senders.
type Server struct {
	start    t.Time
	inbox    *transport.Inbox
	upgrader websocket.Upgrader
	listener net.Listener
	httpSrv  *http.Server

	// Guards conns and closed
	connsMutex sync.Mutex
	conns      map[*transport.Worker]struct{}
	closed     bool
	badPackets atomic.Uint64
}

// Listen starts serving in the background.
func Listen(opts ServerOptions) (*Server, error) {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("can't listen on %s: %w", opts.Addr, err)
	}

	s := &Server{
		start:    t.Now(),
		inbox:    transport.NewInbox("wsock"),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		listener: ln,
		conns:    map[*transport.Worker]struct{}{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleWS)
	for hpath, h := range opts.Handlers {
		mux.Handle(hpath, h)
	}
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * t.Second}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("WebSocket server stopped", "error", err)
			s.inbox.Close()
		}
	}()
	slog.Info("Listening for senders", "addr", ln.Addr().String(), "path", path)
	return s, nil
}

// Addr is the address actually listened on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) CurTime() uint64 {
	return uint64(t.Since(s.start).Microseconds())
}

func (s *Server) RecvTimeout(timeout t.Duration) ([]p.LedMsg, error) {
	return s.inbox.Recv(timeout)
}

func (s *Server) Recv() ([]p.LedMsg, error) {
	return s.inbox.Recv(-1)
}

// Close stops accepting, terminates every connection worker and makes
// further receives fail with ErrUnrecoverable.
func (s *Server) Close() error {
	s.connsMutex.Lock()
	s.closed = true
	workers := make([]*transport.Worker, 0, len(s.conns))
	for w := range s.conns {
		workers = append(workers, w)
	}
	s.connsMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)
	for _, w := range workers {
		w.Terminate()
	}
	s.inbox.Close()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.connsMutex.Lock()
	defer s.connsMutex.Unlock()
	if s.closed {
		conn.Close()
		return
	}
	slog.Info("Sender connected", "remote", r.RemoteAddr)
	worker := transport.Spawn("wsock "+r.RemoteAddr, s.serveConn(conn))
	s.conns[worker] = struct{}{}
	go func() {
		<-worker.Done()
		s.connsMutex.Lock()
		delete(s.conns, worker)
		s.connsMutex.Unlock()
		slog.Info("Sender disconnected", "remote", r.RemoteAddr)
	}()
}

type message struct {
	kind int
	data []byte
	err  error
}

// serveConn returns the connection worker. A helper goroutine owns the
// blocking reads; the worker owns all writes.
func (s *Server) serveConn(conn *websocket.Conn) transport.WorkFunc {
	return func(ctl <-chan transport.Signal) error {
		defer conn.Close()

		messages := make(chan message)
		readerDone := make(chan struct{})
		defer close(readerDone)
		go func() {
			for {
				kind, data, err := conn.ReadMessage()
				select {
				case messages <- message{kind: kind, data: data, err: err}:
				case <-readerDone:
					return
				}
				if err != nil {
					return
				}
			}
		}()

		for {
			select {
			case sig := <-ctl:
				if sig == transport.Terminate {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "receiver shutting down"),
						t.Now().Add(t.Second))
					return nil
				}
			case msg := <-messages:
				if msg.err != nil {
					if websocket.IsCloseError(msg.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return fmt.Errorf("read from sender: %w", msg.err)
				}
				if err := s.handleMessage(conn, msg); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Server) handleMessage(conn *websocket.Conn, msg message) error {
	switch msg.kind {
	case websocket.TextMessage:
		if string(msg.data) != syncRequest {
			slog.Debug("Ignoring text message", "data", string(msg.data))
			return nil
		}
		now := strconv.FormatUint(s.CurTime(), 10)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(now)); err != nil {
			return fmt.Errorf("answer clock sync: %w", err)
		}
	case websocket.BinaryMessage:
		msgs, err := p.Decode(msg.data, s.CurTime())
		if err != nil {
			s.badPackets.Add(1)
			slog.Debug("Dropping packet", "len", len(msg.data), "error", err)
			return nil
		}
		if len(msgs) > 0 {
			s.inbox.Put(msgs)
		}
	}
	return nil
}

// Stats reports records dropped by the inbox and rejected packets so far.
func (s *Server) Stats() (dropped, bad uint64) {
	return s.inbox.Dropped(), s.badPackets.Load()
}

var _ p.Receiver = (*Server)(nil)
