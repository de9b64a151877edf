// Package server accepts upload connections and hands them to a fixed pool
// of workers through a FIFO dispatch queue.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sheerbytes/thrudrop/internal/artifact"
	"github.com/sheerbytes/thrudrop/internal/dispatch"
	"github.com/sheerbytes/thrudrop/internal/observe"
	"github.com/sheerbytes/thrudrop/internal/protocol"
	"github.com/sheerbytes/thrudrop/internal/worker"
)

// DefaultWorkers is the pool size when Config.Workers is unset.
const DefaultWorkers = 5

// ErrShutdownTimeout is returned by Serve when connections had to be closed
// because they did not finish within Config.ShutdownTimeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config controls the listener and the pool.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string
	// Workers is the fixed pool size.
	Workers int
	// ShutdownTimeout bounds how long Serve waits for in-flight transfers
	// once its context is cancelled. Zero or negative closes them at once.
	ShutdownTimeout time.Duration
}

// Connection is an accepted socket waiting for, or owned by, a worker.
type Connection struct {
	ID         uuid.UUID
	Conn       net.Conn
	AcceptedAt time.Time

	// idle is set while the connection waits for a transfer header.
	idle atomic.Bool
}

// ConnHandler serves one connection until it terminates and closes it.
// *protocol.Handler implements it.
type ConnHandler interface {
	Serve(ctx context.Context, conn protocol.Conn, peer protocol.Peer) error
}

// Server owns the listener, the dispatch queue and the worker pool.
type Server struct {
	cfg     Config
	handler ConnHandler
	sink    observe.Sink
	logger  *slog.Logger

	queue *dispatch.Queue[*Connection]
	pool  *worker.Pool[*Connection]

	listenerMu sync.Mutex
	listener   net.Listener

	// active holds connections owned by a worker, keyed by ID string.
	active sync.Map
}

// New builds a server that stores uploads in store and reports events to
// sink.
func New(cfg Config, store *artifact.Store, sink observe.Sink, logger *slog.Logger) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if sink == nil {
		sink = observe.Discard
	}
	s := &Server{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		queue:  dispatch.New[*Connection](),
	}
	s.handler = protocol.NewHandler(store, observe.Multi(observe.SinkFunc(s.track), sink))
	s.pool = worker.New(cfg.Workers, s.queue, s.serveConn, logger)
	return s
}

// Listen binds the listening socket. Serve calls it when needed; calling it
// first lets a caller report bind failures before serving.
func (s *Server) Listen() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then shuts down: the
// listener is closed, the queue stops, idle connections are closed and
// in-flight transfers get ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.listenerMu.Lock()
	ln := s.listener
	s.listenerMu.Unlock()

	for _, addr := range listenAddrs(ln.Addr()) {
		s.logger.Info("listening", "addr", addr, "workers", s.cfg.Workers)
	}

	s.pool.Start(ctx)

	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("shutdown signal received")
		_ = ln.Close()
	})
	defer stop()

	s.acceptLoop(ctx, ln)
	return s.shutdown()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, time.Second)
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				s.logger.Debug("failed to set TCP_NODELAY", "error", err)
			}
		}

		c := &Connection{ID: uuid.New(), Conn: conn, AcceptedAt: time.Now()}
		s.emit(observe.ConnectionAccepted, c, "")
		if !s.queue.Enqueue(c) {
			s.reject(c, "shutdown")
		}
	}
}

func (s *Server) serveConn(ctx context.Context, c *Connection) {
	id := c.ID.String()
	c.idle.Store(true)
	s.active.Store(id, c)
	defer s.active.Delete(id)
	defer c.Conn.Close()

	_ = s.handler.Serve(ctx, c.Conn, protocol.Peer{
		ID:     id,
		Remote: c.Conn.RemoteAddr().String(),
	})
}

// track follows each connection between transfers so shutdown can close
// the ones that are only waiting for a header.
func (s *Server) track(e observe.Event) {
	v, ok := s.active.Load(e.ConnID)
	if !ok {
		return
	}
	c := v.(*Connection)
	switch e.Kind {
	case observe.RequestReceived:
		c.idle.Store(false)
	case observe.ChecksumVerified, observe.ChecksumMismatch, observe.TransferSkipped:
		c.idle.Store(true)
	}
}

func (s *Server) shutdown() error {
	s.queue.Shutdown()

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	closed := s.closeActive(true)
	s.logger.Info("graceful shutdown: waiting for active transfers",
		"active", s.Active(),
		"idle_closed", closed,
		"queued", s.queue.Len(),
		"timeout", s.cfg.ShutdownTimeout)

	if s.cfg.ShutdownTimeout > 0 {
		timer := time.NewTimer(s.cfg.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-done:
			s.logger.Info("graceful shutdown complete")
			return nil
		case <-timer.C:
		}
	}

	remaining := s.Active()
	s.logger.Warn("shutdown timeout exceeded, forcing closure",
		"active", remaining, "timeout", s.cfg.ShutdownTimeout)
	forced := s.closeActive(false)
	for _, c := range s.queue.Drain() {
		s.reject(c, "shutdown")
		forced++
	}
	<-done
	if forced == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d connections force-closed", ErrShutdownTimeout, forced)
}

// closeActive closes connections owned by workers, or only the idle ones.
func (s *Server) closeActive(idleOnly bool) int {
	n := 0
	s.active.Range(func(_, v any) bool {
		c := v.(*Connection)
		if idleOnly && !c.idle.Load() {
			return true
		}
		if err := c.Conn.Close(); err != nil {
			s.logger.Debug("close connection", "conn", c.ID, "error", err)
		}
		n++
		return true
	})
	return n
}

func (s *Server) reject(c *Connection, reason string) {
	_ = c.Conn.Close()
	s.emit(observe.ConnectionRejected, c, reason)
}

func (s *Server) emit(kind observe.Kind, c *Connection, cause string) {
	s.sink.Emit(observe.Event{
		Kind:   kind,
		Time:   time.Now(),
		ConnID: c.ID.String(),
		Remote: c.Conn.RemoteAddr().String(),
		Cause:  cause,
	})
}

// QueueLen returns the number of connections waiting for a worker.
func (s *Server) QueueLen() int {
	return s.queue.Len()
}

// Busy returns the number of workers serving a connection.
func (s *Server) Busy() int {
	return s.pool.Busy()
}

// Workers returns the pool size.
func (s *Server) Workers() int {
	return s.pool.Size()
}

// Draining reports whether shutdown has begun and new connections are
// being turned away.
func (s *Server) Draining() bool {
	return s.queue.Closed()
}

// Active returns the number of connections owned by workers.
func (s *Server) Active() int {
	n := 0
	s.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
