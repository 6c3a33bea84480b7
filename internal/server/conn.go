package server

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/mxcop/flow/internal/metrics"
)

// Time allowed to write a single frame to a peer before the write is
// abandoned and the send reported as failed.
const writeWait = 5 * time.Second

// Sink is the exclusive write handle to one client's outbound stream.
// All writes go through the sink mutex, so a frame is never interleaved
// with another frame on the same connection — concurrent broadcasts and
// unicasts to one recipient serialize here.
type Sink struct {
	mu        sync.Mutex
	conn      net.Conn
	closeOnce sync.Once
}

func newSink(conn net.Conn) *Sink {
	return &Sink{conn: conn}
}

// Send writes one text frame. Safe for concurrent use.
func (s *Sink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := wsutil.WriteServerMessage(s.conn, ws.OpText, payload); err != nil {
		return err
	}
	metrics.FramesSent.Inc()
	return nil
}

// Close sends a close frame (best effort) and closes the underlying
// connection. Safe to call multiple times.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		wsutil.WriteServerMessage(s.conn, ws.OpClose, nil)
		s.conn.Close()
	})
}

// clientConn binds one accepted connection to its transport identity.
// The remote host:port is the connection key in the registry; the host
// part alone becomes the advertised peer IP during rendezvous.
type clientConn struct {
	conn net.Conn
	addr string // remote host:port, registry key
	ip   string // remote host only
	sink *Sink
}

func newClientConn(conn net.Conn) *clientConn {
	addr := conn.RemoteAddr().String()
	ip := addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		ip = host
	}
	return &clientConn{
		conn: conn,
		addr: addr,
		ip:   ip,
		sink: newSink(conn),
	}
}
