package server

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"xrpl_qr/internal/app"
	"xrpl_qr/internal/infra"
	"xrpl_qr/internal/render"
)

//go:embed static/index.html
var staticFS embed.FS

const (
	sessionCookie = "xrpqr_session"
	maxSessions   = 4096
)

// Server is the HTTP surface of the generator.
type Server struct {
	httpServer *http.Server
	gen        *app.Generator
	renderer   *render.QRRenderer
	sheet      *render.Sheet
	metrics    *infra.Metrics

	mu       sync.Mutex
	sessions map[string]*app.Session
}

// New creates a server listening on addr. metrics may be nil.
func New(addr string, gen *app.Generator, renderer *render.QRRenderer, sheet *render.Sheet, metrics *infra.Metrics) *Server {
	s := &Server{
		gen:      gen,
		renderer: renderer,
		sheet:    sheet,
		metrics:  metrics,
		sessions: make(map[string]*app.Session),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/print", s.handlePrint).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/options", s.handleOptions).Methods(http.MethodGet)
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/qr.png", s.handleQR).Methods(http.MethodGet)
	api.HandleFunc("/address", s.handleGetAddress).Methods(http.MethodGet)
	api.HandleFunc("/address", s.handleForgetAddress).Methods(http.MethodDelete)

	r.Use(recoverer, requestLogger)
	return r
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	slog.Info("Server listening", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// session returns the caller's session id and session, issuing a cookie
// when needed. The id also keys the session's remembered address.
func (s *Server) session(rw http.ResponseWriter, req *http.Request) (string, *app.Session) {
	id := ""
	if c, err := req.Cookie(sessionCookie); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return id, sess
		}
	} else {
		id = uuid.New().String()
		http.SetCookie(rw, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	if len(s.sessions) >= maxSessions {
		// Drop an arbitrary session; it only holds the last output.
		for k := range s.sessions {
			delete(s.sessions, k)
			break
		}
	}
	sess := app.NewSession()
	s.sessions[id] = sess
	return id, sess
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("🚨 PANIC in HTTP handler",
					slog.String("path", req.URL.Path),
					slog.Any("panic", r))
				http.Error(rw, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(rw, req)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Debug("HTTP request",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}
