// Package health serves the liveness endpoints hosting platforms probe:
// "/", "/healthz", "/status" and "/metrics", plus pprof when a token is set.
package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	logx "postbot/pkg/logx"
)

const (
	DefaultAddr        = ":8080"
	DefaultPprofPrefix = "/debug/pprof/"
	banner             = "postbot is running\n"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// PprofToken mounts pprof under PprofPrefix. Empty keeps it off.
	PprofToken  string
	PprofPrefix string
}

// StatusFunc returns the JSON body for /status.
type StatusFunc func() any

type Server struct {
	log     logx.Logger
	cfg     Config
	status  StatusFunc
	metrics http.Handler
	router  *mux.Router

	mu    sync.Mutex
	bound string
}

func New(cfg Config, status StatusFunc, metrics http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{log: log, cfg: cfg, status: status, metrics: metrics}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the bound listen address once Serve is running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	if tok := strings.TrimSpace(s.cfg.PprofToken); tok != "" {
		prefix := normalizePrefix(s.cfg.PprofPrefix)
		base := strings.TrimSuffix(prefix, "/")
		sub := r.PathPrefix(base).Subrouter()
		sub.Use(bearerAuth(tok))
		sub.HandleFunc("/cmdline", hpprof.Cmdline)
		sub.HandleFunc("/profile", hpprof.Profile)
		sub.HandleFunc("/symbol", hpprof.Symbol)
		sub.HandleFunc("/trace", hpprof.Trace)
		sub.PathPrefix("/").HandlerFunc(pprofIndexAt(prefix))
	}
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(banner))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var body any = map[string]string{"status": "running"}
	if s.status != nil {
		body = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		s.log.Warn("encode status failed", logx.Err(err))
	}
}

// Serve listens and serves until ctx is done. It is meant to run under a
// supervisor restart loop; an unexpected exit is returned as an error.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	addr := ln.Addr().String()
	s.mu.Lock()
	s.bound = addr
	s.mu.Unlock()
	s.log.Info("liveness server started", logx.String("addr", addr), logx.Bool("pprof", s.cfg.PprofToken != ""))

	err = srv.Serve(ln)

	s.mu.Lock()
	s.bound = ""
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("liveness server exited unexpectedly")
	}
	return err
}

// bearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func bearerAuth(token string) mux.MiddlewareFunc {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
				}
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = DefaultPprofPrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprof.Index only knows /debug/pprof/; rewrite custom prefixes onto it.
func pprofIndexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = DefaultPprofPrefix + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}
