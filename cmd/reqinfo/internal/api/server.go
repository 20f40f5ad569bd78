package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"
)

// ConnectionCounter reports how many connections are being served.
type ConnectionCounter interface {
	ActiveConnections() int
}

type HealthServer struct {
	server  *http.Server
	ready   atomic.Bool
	counter ConnectionCounter
	handler http.Handler
}

func NewHealthServer(addr string, counter ConnectionCounter) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		counter: counter,
		handler: mux,
	}

	// Default to not ready until explicitly set
	hs.ready.Store(false)

	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	mux.HandleFunc("/connections", hs.handleConnections)

	return hs
}

func (s *HealthServer) Start() {
	go func() {
		logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler exposes the routes without a listener.
func (s *HealthServer) Handler() http.Handler {
	return s.handler
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	}
}

func (s *HealthServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.counter != nil {
		active = s.counter.ActiveConnections()
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strconv.Itoa(active)))
}
