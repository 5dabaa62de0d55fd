// Package api exposes the query service over HTTP.
//
// Routes:
//
//	GET /health
//	GET /countries
//	GET /indicators
//	GET /data?country=&indicator=&start=&end=[&format=csv]
//	GET /data/normalized?country=&indicator=&start=&end=
//	GET /forecast?country=&indicator=&start=&end=&years_ahead=&arima_order=[&format=csv]
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"econdash/internal/model"
	"econdash/internal/query"
)

const (
	shutdownTimeout = 15 * time.Second
	requestTimeout  = 2 * time.Minute
)

// Service is the query surface the server binds to.
type Service interface {
	ListCountries(ctx context.Context) ([]model.Country, error)
	ListIndicators(ctx context.Context) ([]model.Indicator, error)
	GetSeries(ctx context.Context, req query.Request) (model.Series, error)
	GetNormalizedSeries(ctx context.Context, req query.Request) ([]query.NormalizedPoint, error)
	GetForecast(ctx context.Context, req query.Request, horizon int, order model.Order) ([]model.ForecastPoint, error)
}

type Config struct {
	CORSOrigins []string
	// DefaultOrder applies when a request has no arima_order; nil means model.DefaultOrder.
	DefaultOrder *model.Order
	// Now supplies the default forecast end year.
	Now func() time.Time
}

type Server struct {
	router       chi.Router
	svc          Service
	cfg          Config
	defaultOrder model.Order
	logger       *slog.Logger
}

func NewServer(svc Service, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	defaultOrder := model.DefaultOrder
	if cfg.DefaultOrder != nil {
		defaultOrder = *cfg.DefaultOrder
	}
	s := &Server{
		svc:          svc,
		cfg:          cfg,
		defaultOrder: defaultOrder,
		logger:       logger.With("component", "api"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/countries", s.handleCountries)
	r.Get("/indicators", s.handleIndicators)
	r.Get("/data", s.handleData)
	r.Get("/data/normalized", s.handleNormalized)
	r.Get("/forecast", s.handleForecast)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
