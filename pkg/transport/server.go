package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framelink-protocol/framelink-go/pkg/frame"
	"github.com/framelink-protocol/framelink-go/pkg/log"
)

// Handler processes one established connection. It owns the transport
// for the duration of the call; the server closes the transport once
// the handler returns or fails.
type Handler func(t *Transport) error

// Server accepts connections on a bound address and runs the configured
// handler once per connection, each in its own goroutine.
type Server struct {
	cfg      Config
	handler  Handler
	limit    frame.Limit
	listener net.Listener

	mu     sync.Mutex
	free   *sync.Cond // signaled when a connection slot frees up
	active int
	conns  map[*Transport]struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

// Listen binds address and starts accepting connections, handing each
// accepted transport to h. It returns immediately; use Stop to shut
// the server down.
func Listen(address string, cfg Config, h Handler) (*Server, error) {
	limit, err := cfg.limit()
	if err != nil {
		return nil, err
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	if cfg.TLSConfig != nil {
		lis = tls.NewListener(lis, cfg.TLSConfig)
	}

	s := &Server{
		cfg:      cfg,
		handler:  h,
		limit:    limit,
		listener: lis,
		conns:    make(map[*Transport]struct{}),
	}
	s.free = sync.NewCond(&s.mu)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop closes the listener and every active transport, then waits for
// all connection goroutines to finish. Safe to call multiple times.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	err := s.listener.Close()

	s.mu.Lock()
	for t := range s.conns {
		t.Close()
	}
	s.free.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		// Auth gate: rejected clients are dropped silently and never
		// reach the handler.
		if s.cfg.Auth != nil && !s.cfg.Auth(conn.RemoteAddr()) {
			conn.Close()
			continue
		}

		if !s.acquireSlot() {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// acquireSlot reserves a connection slot. When at the MaxConnections
// cap it either reports false (drop policy) or blocks until a slot
// frees or the server stops.
func (s *Server) acquireSlot() bool {
	if s.cfg.MaxConnections <= 0 {
		s.mu.Lock()
		s.active++
		s.mu.Unlock()
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.active >= s.cfg.MaxConnections {
		if s.cfg.DropIncomingConnections || !s.running.Load() {
			return false
		}
		s.free.Wait()
	}
	s.active++
	return true
}

func (s *Server) releaseSlot(t *Transport) {
	s.mu.Lock()
	s.active--
	delete(s.conns, t)
	s.free.Signal()
	s.mu.Unlock()
}

// handleConnection serves one accepted socket: it builds the transport,
// runs the handler inside an isolated failure scope, always closes the
// transport, and routes any handler failure to the configured policy.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	t := newTransport(conn, s.limit, s.cfg.Logger)
	s.mu.Lock()
	s.conns[t] = struct{}{}
	stopped := !s.running.Load()
	s.mu.Unlock()
	if stopped {
		// Stop may already have swept s.conns before this transport was
		// registered; it will not come back for it.
		t.Close()
		s.releaseSlot(t)
		return
	}
	s.logState(t, "", "CONNECTED")

	err := s.runHandler(t)

	t.Close()
	s.releaseSlot(t)

	if err != nil && s.cfg.OnHandlerError != nil {
		s.cfg.OnHandlerError(conn.RemoteAddr(), err)
	}
}

// runHandler invokes the handler under a panic boundary so one
// connection's failure cannot terminate the listener or its siblings.
func (s *Server) runHandler(t *Transport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(t)
}

func (s *Server) logState(t *Transport, oldState, newState string) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.ConnID(),
		Category:     log.CategoryState,
		RemoteAddr:   t.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (s *Server) logError(t *Transport, err error) {
	if s.cfg.Logger == nil {
		return
	}
	ev := log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error()},
	}
	if t != nil {
		ev.ConnectionID = t.ConnID()
		ev.RemoteAddr = t.RemoteAddr().String()
	}
	s.cfg.Logger.Log(ev)
}
