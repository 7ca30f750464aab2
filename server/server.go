// Package server provides the HTTP server that fronts the OAuth flows:
// route registration, gzip, CORS and security headers, TLS, and graceful
// shutdown on SIGTERM/SIGINT.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/bestieapp/authlink/logging"
)

// Server wraps an http.Server bound to a mux assembled by the builder.
type Server struct {
	// Hostname or IP to bind to.
	host string

	// Port to listen on.
	port int

	// Location of certificate file, if TLS to be used.
	certFile string

	// Location of key file, if TLS to be used.
	keyFile string

	// Context that is propagated to request handlers.
	baseContext context.Context

	httpServer *http.Server
	httpMux    *http.ServeMux
}

// Start serving requests. Blocks until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr: addr,
		BaseContext: func(listener net.Listener) context.Context {
			return s.baseContext
		},
	}

	var done = make(chan struct{})
	var err error

	go func() {
		var gracefulStop = make(chan os.Signal, 1)
		signal.Notify(gracefulStop, syscall.SIGTERM)
		signal.Notify(gracefulStop, syscall.SIGINT)
		sig := <-gracefulStop
		logging.Infof(s.baseContext, "👋 Graceful shutdown triggered... (sig %+v)\n", sig)
		s.Shutdown()
		close(done)
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	defer ln.Close()

	s.httpServer.Handler = gziphandler.GzipHandler(s.httpMux)

	if s.certFile != "" {
		s.httpServer.TLSConfig = safeTLSConfig()
		logging.Infof(s.baseContext, "🚀  Listening for traffic on https://%s\n", addr)
		err = s.httpServer.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		logging.Infof(s.baseContext, "🚀  Listening for traffic on http://%s\n", addr)
		err = s.httpServer.Serve(ln)
	}

	if !errors.Is(err, http.ErrServerClosed) {
		return err // The server wasn't shutdown gracefully.
	}

	<-done
	return nil
}

// Shutdown gracefully shuts down the server with a 2s timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(s.baseContext, time.Second*2)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		fmt.Printf("❌ Shutdown error: %v\n", err)
	} else {
		fmt.Printf("👍 Connections drained\n")
	}
	s.httpServer = nil
	return err
}

// Handler returns the assembled handler without starting a listener, for use
// in tests.
func (s *Server) Handler() http.Handler {
	return gziphandler.GzipHandler(s.httpMux)
}

// TLS1.2 min.
func safeTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}
}
