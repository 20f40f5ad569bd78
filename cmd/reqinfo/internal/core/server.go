package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/transport"
)

var ErrServerClosed = errors.New("core: server closed")

const maxAcceptDelay = time.Second

// Server is the accept loop. Every connection runs its ConnectionHandler in
// its own goroutine; the server keeps a registry of them only to signal and
// wait for them on Stop, never to close them itself.
type Server struct {
	Listener          net.Listener
	ConnectionHandler ConnectionHandler

	initOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	closing  atomic.Bool
	nextID   atomic.Uint64
	handlers sync.WaitGroup

	mu    sync.Mutex
	conns map[uint64]net.Conn
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.conns = make(map[uint64]net.Conn)
	})
}

// Serve accepts connections until Stop is called, then returns ErrServerClosed.
// A failed accept is retried; only a listener closed by someone else ends the
// loop with that error.
func (s *Server) Serve() error {
	s.init()

	// counted as a handler so that Stop can't start waiting while an accepted
	// connection is still being registered
	s.handlers.Add(1)
	defer s.handlers.Done()

	var delay time.Duration

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}

			if errors.Is(err, net.ErrClosed) {
				return err
			}

			delay = nextAcceptDelay(delay)
			logger.Debug("Accept failed, retrying",
				"error", transport.NewError(transport.SiteAccept, err),
				"retry_in", delay)
			time.Sleep(delay)

			continue
		}

		delay = 0
		s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(clientConn net.Conn) {
	id := s.nextID.Add(1)
	ctx := WithConnInfo(s.ctx, ConnInfo{
		ID:         id,
		RemoteAddr: clientConn.RemoteAddr().String(),
	})

	s.track(id, clientConn)
	s.handlers.Add(1)

	go func() {
		defer s.handlers.Done()
		defer s.untrack(id)

		// Delegate the entire lifecycle to the handler
		s.ConnectionHandler.HandleConnection(ctx, clientConn)
	}()
}

func (s *Server) track(id uint64, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[id] = conn
	if s.closing.Load() {
		interrupt(conn)
	}
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// ActiveConnections returns the number of connections whose handler is still running.
func (s *Server) ActiveConnections() int {
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

// Stop closes the listener, tells every handler to finish, and waits until
// they all have returned or ctx is done. A handler that is writing a response
// completes it; one that is waiting for a request has its read interrupted.
func (s *Server) Stop(ctx context.Context) error {
	s.init()

	s.closing.Store(true)
	if err := s.Listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("Failed to close listener", "error", err)
	}
	s.cancel()

	s.mu.Lock()
	pending := len(s.conns)
	for _, conn := range s.conns {
		interrupt(conn)
	}
	s.mu.Unlock()

	logger.Info("Waiting for connections to drain", "active", pending)

	drained := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// interrupt makes any pending or future read on conn fail at once. Writes are
// not affected.
func interrupt(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now())
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}

	return min(2*delay, maxAcceptDelay)
}
