package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPService runs an http.Server until its context is done. It satisfies
// suture.Service.
type HTTPService struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	ready           chan net.Addr
}

// NewHTTPService wraps srv. A non-positive timeout means 10s.
func NewHTTPService(srv *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{srv: srv, shutdownTimeout: shutdownTimeout, ready: make(chan net.Addr, 1)}
}

// Ready yields the bound address once the listener is open.
func (s *HTTPService) Ready() <-chan net.Addr { return s.ready }

// Serve listens on srv.Addr and serves until ctx is done, then shuts down
// gracefully.
func (s *HTTPService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	select {
	case s.ready <- ln.Addr():
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (s *HTTPService) String() string { return "http-server" }
