// Package server implements the WebSocket relay: the accept loop, the
// per-connection read loop, message dispatch, and broadcast fan-out.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/mxcop/flow/internal/metrics"
	"github.com/mxcop/flow/internal/protocol"
	"github.com/mxcop/flow/internal/registry"
)

// Config holds the server's runtime parameters.
type Config struct {
	// Addr is the TCP bind address for the WebSocket listener.
	Addr string

	// MetricsAddr serves /metrics and /healthz. Empty disables the
	// observability listener entirely.
	MetricsAddr string

	// MetricsInterval is the system sampler period.
	MetricsInterval time.Duration
}

// Server owns the listener, the registry, and all connection goroutines.
type Server struct {
	config   Config
	logger   zerolog.Logger
	registry *registry.Registry

	listener   net.Listener
	metricsSrv *http.Server

	// conns tracks every open connection (logged in or not) so shutdown
	// can close them all.
	conns       sync.Map // *clientConn -> struct{}
	activeConns int64

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shuttingDown int32
	startTime    time.Time
}

// New creates a server. Call Start to bind and begin accepting.
func New(config Config, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:    config,
		logger:    logger,
		registry:  registry.New(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Addr returns the listener's bound address. Valid after Start; useful
// when the configured address uses port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Registry exposes the presence store (health reporting and tests).
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Start binds the listener and spawns the accept loop. A bind failure is
// returned to the caller; everything after that point is handled by the
// server's own goroutines.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Msg("Server listening")

	metrics.MustRegister()

	if s.config.MetricsAddr != "" {
		s.metricsSrv = metrics.NewHTTPServer(s.config.MetricsAddr, s.health)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
		s.logger.Info().
			Str("addr", s.config.MetricsAddr).
			Msg("Metrics endpoint listening")
	}

	if s.config.MetricsInterval > 0 {
		metrics.StartSampler(s.ctx, s.logger, s.config.MetricsInterval)
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.shuttingDown) == 1 {
				return
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			return
		}

		metrics.ConnectionsTotal.Inc()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn performs the WebSocket handshake and runs the connection
// loop until the client goes away. Cleanup always runs exactly once:
// remove the user (purging dependent offers), broadcast the leave, close
// the sink.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	s.logger.Debug().Str("addr", remote).Msg("Connection accepted")

	if _, err := ws.Upgrade(conn); err != nil {
		metrics.UpgradesFailed.Inc()
		s.logger.Warn().Err(err).Str("addr", remote).Msg("WebSocket upgrade failed")
		conn.Close()
		return
	}
	s.logger.Info().Str("addr", remote).Msg("Handshake complete")

	c := newClientConn(conn)
	s.conns.Store(c, struct{}{})
	metrics.ConnectionsActive.Set(float64(atomic.AddInt64(&s.activeConns, 1)))

	s.readLoop(c)

	// Synthesized disconnect: on read error or close, the user entry (if
	// login completed) and all its offers go away in one registry step,
	// then everyone else learns about the leave.
	s.disconnect(c)

	s.conns.Delete(c)
	metrics.ConnectionsActive.Set(float64(atomic.AddInt64(&s.activeConns, -1)))
}

func (s *Server) disconnect(c *clientConn) {
	user, ok := s.registry.RemoveUser(c.addr)
	if ok {
		s.logger.Info().
			Str("addr", c.addr).
			Str("user_id", user.ID).
			Str("name", user.Name).
			Msg("User disconnected")

		s.syncPresenceGauges()
		s.broadcast(c.addr, protocol.Leave(user.Info()))
	} else {
		s.logger.Debug().Str("addr", c.addr).Msg("Connection closed before login")
	}
	c.sink.Close()
}

func (s *Server) syncPresenceGauges() {
	metrics.UsersActive.Set(float64(s.registry.UserCount()))
	metrics.OffersPending.Set(float64(s.registry.OfferCount()))
}

func (s *Server) health() metrics.Health {
	return metrics.Health{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Users:         s.registry.UserCount(),
		Offers:        s.registry.OfferCount(),
		Connections:   atomic.LoadInt64(&s.activeConns),
	}
}

// Shutdown stops accepting, closes every open connection, and waits for
// all connection goroutines to finish.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Initiating graceful shutdown")
	atomic.StoreInt32(&s.shuttingDown, 1)

	if s.listener != nil {
		s.listener.Close()
	}

	s.conns.Range(func(key, _ any) bool {
		if c, ok := key.(*clientConn); ok {
			c.sink.Close()
		}
		return true
	})

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.metricsSrv.Shutdown(ctx)
	}

	s.cancel()
	s.wg.Wait()

	s.logger.Info().Msg("Shutdown complete")
	return nil
}
