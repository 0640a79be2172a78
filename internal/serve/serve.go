// Package serve hosts a directory over HTTP on a loopback port so a target
// page can be loaded from http:// instead of file://.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is a running static file server.
type Server struct {
	base *url.URL
	srv  *http.Server
	done chan error
}

// Start serves dir on 127.0.0.1 at an ephemeral port.
func Start(dir string, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{
		base: &url.URL{Scheme: "http", Host: ln.Addr().String(), Path: "/"},
		srv: &http.Server{
			Handler:           Router(dir, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		done: make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	log.Debug("serving directory", "dir", dir, "url", s.base.String())
	return s, nil
}

// Router returns the handler serving dir, logging each request at debug level.
func Router(dir string, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			log.Debug("serve", "method", req.Method, "path", req.URL.Path, "status", ww.Status())
		})
	})
	r.Handle("/*", http.FileServer(http.Dir(dir)))
	return r
}

// URL is the root of the served directory.
func (s *Server) URL() string {
	return s.base.String()
}

// Resolve turns ref into an absolute URL on this server. Absolute http(s)
// URLs are returned unchanged.
func (s *Server) Resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid target reference %q: %w", ref, err)
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return u.String(), nil
	}
	if u.Scheme != "" || u.Host != "" {
		return "", fmt.Errorf("target reference %q must be a path when serving a directory", ref)
	}
	u.Path = strings.TrimPrefix(u.Path, "/")
	return s.base.ResolveReference(u).String(), nil
}

// Close stops the server and waits for it to finish.
func (s *Server) Close(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
