package server

import (
	"context"
	"net/http"

	"github.com/bestieapp/authlink/config"
	"github.com/bestieapp/authlink/logging"
)

// ServerOption customizes the configuration and operation of the server.
type ServerOption func(*builder)

type handler struct {
	prefix  string
	handler http.Handler
}

// New returns a new server. Defaults come from config, options override.
func New(opts ...ServerOption) *Server {
	b := &builder{
		host:     config.String("server.host"),
		port:     config.Int("server.port"),
		certFile: config.String("server.tls.certFile"),
		keyFile:  config.String("server.tls.keyFile"),
		security: &SecurityHeaders{
			XFramesOptions:       XFramesOptionsDeny,
			CORSOrigins:          config.Strings("server.corsOrigins"),
			CORSAllowCredentials: true,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.build()
}

type builder struct {
	host         string
	port         int
	certFile     string
	keyFile      string
	logger       logging.Logger
	security     *SecurityHeaders
	httpHandlers []handler
}

func (b *builder) build() *Server {
	ctx := context.Background()
	if b.logger != nil {
		ctx = logging.With(ctx, b.logger)
	} else {
		ctx = logging.With(ctx, logging.NewDevLogger())
	}

	s := &Server{
		baseContext: ctx,
		host:        b.host,
		port:        b.port,
		certFile:    b.certFile,
		keyFile:     b.keyFile,
		httpMux:     http.NewServeMux(),
	}

	for _, h := range b.httpHandlers {
		s.httpMux.Handle(h.prefix, b.wrapHandler(h.handler))
	}

	return s
}

// wrapHandler applies the security headers to every response and terminates
// CORS preflights.
func (b *builder) wrapHandler(h http.Handler) http.Handler {
	if b.security == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := b.security.Apply(w, r); err != nil {
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodOptions {
			return // Just the headers.
		}
		h.ServeHTTP(w, r)
	})
}

// WithHost overrides the interface the server binds to.
func WithHost(host string) ServerOption {
	return func(b *builder) {
		b.host = host
	}
}

// WithPort overrides the port the server listens on.
func WithPort(port int) ServerOption {
	return func(b *builder) {
		b.port = port
	}
}

// WithTLS configures the server to terminate TLS with the given certificate.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(b *builder) {
		b.certFile = certFile
		b.keyFile = keyFile
	}
}

// WithSecurityHeaders overrides the default security headers. Pass nil to
// disable them entirely.
func WithSecurityHeaders(s *SecurityHeaders) ServerOption {
	return func(b *builder) {
		b.security = s
	}
}

// WithStaticFiles configures the server to serve static files from disk for
// HTTP requests that match the given prefix.
func WithStaticFiles(prefix, dir string) ServerOption {
	return func(b *builder) {
		b.httpHandlers = append(b.httpHandlers, handler{
			prefix:  prefix,
			handler: http.FileServer(http.Dir(dir)),
		})
	}
}

// WithHTTPHandler adds an HTTP handler.
func WithHTTPHandler(prefix string, h http.Handler) ServerOption {
	return func(b *builder) {
		b.httpHandlers = append(b.httpHandlers, handler{
			prefix:  prefix,
			handler: h,
		})
	}
}

// WithHTTPHandlerFunc adds an HTTP handler function.
func WithHTTPHandlerFunc(prefix string, h func(http.ResponseWriter, *http.Request)) ServerOption {
	return func(b *builder) {
		b.httpHandlers = append(b.httpHandlers, handler{
			prefix:  prefix,
			handler: http.HandlerFunc(h),
		})
	}
}

// WithLogger overrides the logger used by the server.
func WithLogger(logger logging.Logger) ServerOption {
	return func(b *builder) {
		b.logger = logger
	}
}
