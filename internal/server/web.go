package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"webvnc/internal/config"
	"webvnc/internal/logger"
)

// Web serves the browser client's static files next to the WebSocket
// listener.
type Web struct {
	cfg    config.ServerConfig
	router chi.Router
	server *http.Server
}

func NewWeb(cfg config.ServerConfig) *Web {
	w := &Web{cfg: cfg}
	w.router = w.buildRouter()
	return w
}

// Handler returns the router, mainly for tests.
func (w *Web) Handler() http.Handler {
	return w.router
}

func (w *Web) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(w.headers)

	if w.cfg.HealthPath != "" {
		r.Get(w.cfg.HealthPath, handleHealth)
	}
	r.Handle("/*", http.FileServer(http.Dir(w.cfg.WebRoot)))
	return r
}

// headers sets CORS and caching headers and answers preflights.
func (w *Web) headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		if w.cfg.CORSOrigin != "" {
			h.Set("Access-Control-Allow-Origin", w.cfg.CORSOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if w.cfg.CacheControl != "" {
			h.Set("Cache-Control", w.cfg.CacheControl)
		}
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(start))
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Run serves on cfg.HTTPListen until ctx is done, then shuts down
// gracefully. Listen errors are returned.
func (w *Web) Run(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              w.cfg.HTTPListen,
		Handler:           w.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logger.Info("web server listening", "addr", w.cfg.HTTPListen, "root", w.cfg.WebRoot)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
