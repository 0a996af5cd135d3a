package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/vbonduro/photographies/internal/domain"
	"github.com/vbonduro/photographies/internal/mediastore"
	"github.com/vbonduro/photographies/internal/ratelimit"
	"github.com/vbonduro/photographies/internal/service"
)

const defaultMaxUploadSizeMB = 10

// photographyService is the subset of service.PhotographyService the HTTP
// handlers use.
type photographyService interface {
	UploadPhotography(ctx context.Context, up service.Upload) (*domain.Photography, error)
	UploadPhotographies(ctx context.Context, ups []service.Upload) ([]*domain.Photography, error)
	ListPhotographies(ctx context.Context, order domain.SortOrder) ([]*domain.Photography, error)
	GetPhotography(ctx context.Context, id string) (*domain.Photography, error)
	GetPhotographyByCode(ctx context.Context, code string) (*domain.Photography, error)
	DeletePhotography(ctx context.Context, id string) error
	DeletePhotographies(ctx context.Context, ids []string) error
	DeleteAllPhotographies(ctx context.Context) error
}

type Options struct {
	// MaxUploadSizeMB caps each uploaded file. Zero uses the default of 10.
	MaxUploadSizeMB int
	// Limiter throttles requests per client IP. Nil disables limiting.
	Limiter ratelimit.Limiter
}

type Server struct {
	service        photographyService
	media          mediastore.Getter
	limiter        ratelimit.Limiter
	validate       *validator.Validate
	maxUploadBytes int64
	maxUploadMB    int
	mux            *http.ServeMux
	logger         *slog.Logger
}

// NewServer wires the routes. When media implements mediastore.Getter the
// stored files are also served under /media/.
func NewServer(svc photographyService, media mediastore.MediaStore, logger *slog.Logger, opts Options) *Server {
	if opts.MaxUploadSizeMB <= 0 {
		opts.MaxUploadSizeMB = defaultMaxUploadSizeMB
	}
	s := &Server{
		service:        svc,
		limiter:        opts.Limiter,
		validate:       newValidator(),
		maxUploadBytes: int64(opts.MaxUploadSizeMB) << 20,
		maxUploadMB:    opts.MaxUploadSizeMB,
		mux:            http.NewServeMux(),
		logger:         logger,
	}
	if g, ok := media.(mediastore.Getter); ok {
		s.media = g
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /photographies/upload", s.handleUpload)
	s.mux.HandleFunc("POST /photographies/upload-multiple", s.handleUploadMultiple)
	s.mux.HandleFunc("GET /photographies", s.handleList)
	s.mux.HandleFunc("GET /photographies/{id}", s.handleGet)
	s.mux.HandleFunc("GET /photographies/code/{code}", s.handleGetByCode)
	s.mux.HandleFunc("DELETE /photographies/all", s.handleDeleteAll)
	s.mux.HandleFunc("DELETE /photographies/delete-multiple", s.handleDeleteMultiple)
	s.mux.HandleFunc("DELETE /photographies/{id}", s.handleDelete)

	if s.media != nil {
		s.mux.HandleFunc("GET /media/{key...}", s.handleGetMedia)
	}
}

// newValidator reports field names using their json tags.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func recoverer(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects clients that exceeded their window with 429. Limiter
// failures are logged and the request is let through.
func rateLimit(limiter ratelimit.Limiter, logger *slog.Logger, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, retryAfter, err := limiter.Allow(r.Context(), ip)
		if err != nil {
			logger.Warn("rate limiter unavailable", "client_ip", ip, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			secs := max(int((retryAfter+time.Second-1)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := securityHeaders(rateLimit(s.limiter, s.logger, s.mux))
	requestLogger(s.logger, recoverer(s.logger, handler)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
