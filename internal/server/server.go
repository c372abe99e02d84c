// Package server runs the HTTPS listener and owns its lifecycle: bind,
// serve, and a shutdown that can be requested from inside a request.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultShutdownTimeout bounds how long in-flight requests may drain.
	DefaultShutdownTimeout = 10 * time.Second
)

// BindError reports that the listening socket could not be opened. Hint
// carries an operator-facing suggestion when the cause is recognised.
type BindError struct {
	Addr string
	Hint string
	Err  error
}

func (e *BindError) Error() string {
	msg := fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *BindError) Unwrap() error { return e.Err }

func newBindError(addr string, err error) *BindError {
	be := &BindError{Addr: addr, Err: err}
	switch {
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		be.Hint = "ports below 1024 need elevated privileges; run with sufficient rights or choose another port with --addr"
	case errors.Is(err, syscall.EADDRINUSE):
		be.Hint = "another process is already listening on this port"
	}
	return be
}

// Server is an HTTPS server bound to a single address.
type Server struct {
	addr     string
	certFile string
	keyFile  string
	logger   *slog.Logger

	srv *http.Server
	ln  net.Listener

	stopOnce sync.Once
	done     chan struct{}
	timeout  time.Duration
}

// New creates a Server. Nothing is bound until Listen is called.
func New(addr string, handler http.Handler, certFile, keyFile string, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		},
		done:    make(chan struct{}),
		timeout: DefaultShutdownTimeout,
	}
}

// Listen loads the key pair and binds the TLS listener. A failure to bind is
// returned as a *BindError.
func (s *Server) Listen() error {
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair (cert %q, key %q): %w", s.certFile, s.keyFile, err)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return newBindError(s.addr, err)
	}

	s.ln = tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	})
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Serve accepts connections until the server is stopped. A stop is not an
// error.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	s.logger.Info("https server starting", "addr", s.Addr())
	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-s.done
		return nil
	}
	return err
}

// Stop gracefully shuts the server down, waiting for in-flight requests until
// ctx expires. Only the first call has any effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		defer close(s.done)
		s.logger.Info("https server stopping")
		err = s.srv.Shutdown(ctx)
		if err != nil {
			s.logger.Error("https server shutdown error", "error", err)
		}
	})
	return err
}

// RequestStop starts a graceful stop and returns immediately. It is safe to
// call from a handler the server is still running.
func (s *Server) RequestStop() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.Stop(ctx)
	}()
}

// Done is closed once a stop has completed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}
