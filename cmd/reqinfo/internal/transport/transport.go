package transport

import (
	"net"
	"sync"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"
)

type state int

const (
	stateIdle state = iota
	stateReady
	stateShutdown
)

// Transport brackets the lifetime of every listener the process opens. Init
// and Shutdown are each meant to be called exactly once.
type Transport struct {
	mu        sync.Mutex
	state     state
	listeners map[*Listener]struct{}
}

func New() *Transport {
	return &Transport{
		listeners: make(map[*Listener]struct{}),
	}
}

var defaultTransport = New()

func Init() error {
	return defaultTransport.Init()
}

func Shutdown() error {
	return defaultTransport.Shutdown()
}

func Listen(host, port string) (*Listener, error) {
	return defaultTransport.Listen(host, port)
}

func (t *Transport) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case stateReady:
		return NewError(SiteInit, ErrAlreadyInitialized)
	case stateShutdown:
		return NewError(SiteInit, ErrShutdown)
	}

	t.state = stateReady
	logger.Debug("Transport initialized")

	return nil
}

// Shutdown closes every listener that is still open. Listen fails afterwards.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	if t.state != stateReady {
		t.mu.Unlock()
		return NewError(SiteInit, ErrNotInitialized)
	}

	t.state = stateShutdown
	open := make([]*Listener, 0, len(t.listeners))
	for l := range t.listeners {
		open = append(open, l)
	}
	t.mu.Unlock()

	for _, l := range open {
		_ = l.Close()
	}

	logger.Debug("Transport shut down", "closed_listeners", len(open))

	return nil
}

// Listen opens an IPv4 TCP listener on host:port. An empty host means every
// local interface.
func (t *Transport) Listen(host, port string) (*Listener, error) {
	t.mu.Lock()
	ready := t.state == stateReady
	t.mu.Unlock()

	if !ready {
		return nil, NewError(SiteInit, ErrNotInitialized)
	}

	addr, err := net.ResolveTCPAddr("tcp4", net.JoinHostPort(host, port))
	if err != nil {
		return nil, NewError(SiteResolve, err)
	}

	ln, err := listen(addr)
	if err != nil {
		return nil, err
	}

	endpoint, _ := ln.Addr().(*net.TCPAddr)
	l := &Listener{
		Listener:  ln,
		endpoint:  endpoint,
		transport: t,
	}

	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	return l, nil
}

func (t *Transport) forget(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// Listener is a net.Listener that remembers the endpoint it is bound to until
// it is closed.
type Listener struct {
	net.Listener

	mu        sync.Mutex
	endpoint  *net.TCPAddr
	transport *Transport
	closeOnce sync.Once
	closeErr  error
}

// Endpoint returns the bound address, or nil once the listener is closed.
func (l *Listener) Endpoint() *net.TCPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.endpoint
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.Listener.Close()

		l.mu.Lock()
		l.endpoint = nil
		l.mu.Unlock()

		l.transport.forget(l)
	})

	return l.closeErr
}
