package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server the sync API listener. No write timeout: a manual backfill answers
// only when the run completes.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger

	mu    sync.Mutex
	bound net.Addr
	ready chan struct{}
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Start listens and serves until Stop; a clean shutdown returns nil
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Starting coldtrack-sync HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr the bound address once Start is listening, waiting up to timeout
func (s *Server) Addr(timeout time.Duration) (net.Addr, bool) {
	select {
	case <-s.ready:
	case <-time.After(timeout):
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound, true
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping coldtrack-sync HTTP server")
	return s.httpServer.Shutdown(ctx)
}
