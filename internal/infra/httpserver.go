package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer owns the API listener lifecycle: Start blocks until the server
// stops, Shutdown drains in-flight requests within the caller's deadline.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer builds the server from the service config. Header reads get
// a tighter bound than full reads because job submissions can carry inline
// image payloads that take a while to upload.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	headerTimeout := 5 * time.Second
	if cfg.HTTPReadTimeout > 0 && cfg.HTTPReadTimeout < headerTimeout {
		headerTimeout = cfg.HTTPReadTimeout
	}
	return &HTTPServer{srv: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: headerTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start listens until the server is shut down. A close triggered by Shutdown
// is a normal exit, not an error.
func (s *HTTPServer) Start() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits for in-flight requests
// until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
