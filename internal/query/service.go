// Package query serves series and forecasts from the local cache, falling
// back to the upstream provider on a miss.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"econdash/internal/catalog"
	"econdash/internal/model"
	"econdash/internal/normalize"
	"econdash/internal/providers"
	"econdash/internal/store"
)

// NormalizedScale divides values for the normalized series view.
const NormalizedScale = 1e6

type Forecaster interface {
	Forecast(series model.Series, horizon int, order model.Order) ([]model.ForecastPoint, error)
}

type NormalizedPoint struct {
	Year       int     `json:"year"`
	Normalized float64 `json:"normalized"`
}

type Service struct {
	provider   providers.Provider
	store      store.Store
	catalog    *catalog.Catalog
	forecaster Forecaster
	memo       *expirable.LRU[Request, model.Series]
	group      singleflight.Group
	logger     *slog.Logger
}

type Option func(*Service)

// WithForecaster enables GetForecast. Without it GetForecast returns ErrForecastUnavailable.
func WithForecaster(f Forecaster) Option {
	return func(s *Service) {
		s.forecaster = f
	}
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithMemo keeps up to size recently served series in memory for ttl.
func WithMemo(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 && ttl > 0 {
			s.memo = expirable.NewLRU[Request, model.Series](size, nil, ttl)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(provider providers.Provider, st store.Store, opts ...Option) *Service {
	if st == nil {
		st = &store.NopStore{}
	}
	s := &Service{
		provider: provider,
		store:    st,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = catalog.New(provider, st, s.logger)
	}
	s.logger = s.logger.With("component", "query")
	return s
}

func (s *Service) ListCountries(ctx context.Context) ([]model.Country, error) {
	return s.catalog.Countries(ctx)
}

func (s *Service) ListIndicators(ctx context.Context) ([]model.Indicator, error) {
	return s.catalog.Indicators(ctx)
}

// GetSeries returns observations for the range ordered by year. It returns
// ErrNoData when neither the cache nor the provider has a value in range.
func (s *Service) GetSeries(ctx context.Context, req Request) (model.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	return s.series(ctx, req)
}

func (s *Service) GetNormalizedSeries(ctx context.Context, req Request) ([]NormalizedPoint, error) {
	series, err := s.GetSeries(ctx, req)
	if err != nil {
		return nil, err
	}
	points := make([]NormalizedPoint, 0, len(series))
	for _, observation := range series {
		points = append(points, NormalizedPoint{
			Year:       observation.Year,
			Normalized: *observation.Value / NormalizedScale,
		})
	}
	return points, nil
}

// GetForecast returns the history for req followed by horizon projected years.
func (s *Service) GetForecast(ctx context.Context, req Request, horizon int, order model.Order) ([]model.ForecastPoint, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if err := validateHorizon(horizon); err != nil {
		return nil, err
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if s.forecaster == nil {
		return nil, ErrForecastUnavailable
	}

	history, err := s.series(ctx, req)
	if err != nil {
		return nil, err
	}
	points, err := s.forecaster.Forecast(history, horizon, order)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", req, err)
	}
	return points, nil
}

func (s *Service) series(ctx context.Context, req Request) (model.Series, error) {
	if s.memo != nil {
		if cached, ok := s.memo.Get(req); ok {
			return append(model.Series(nil), cached...), nil
		}
	}

	covered, err := s.store.Covered(ctx, req.Country, req.Indicator, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("cache lookup %s: %w", req, err)
	}

	var series model.Series
	if covered {
		series, err = s.store.FetchSeries(ctx, req.Country, req.Indicator, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("cache read %s: %w", req, err)
		}
		s.logger.Debug("cache hit", "request", req.String(), "rows", len(series))
	} else {
		series, err = s.fetch(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, req)
	}
	if s.memo != nil {
		s.memo.Add(req, series)
	}
	return append(model.Series(nil), series...), nil
}

// fetch loads req from upstream and writes it back. Concurrent misses for
// the same request share one upstream fetch, which outlives any single
// caller's cancellation and is bounded by the client timeouts instead.
func (s *Service) fetch(ctx context.Context, req Request) (model.Series, error) {
	ctx = context.WithoutCancel(ctx)
	result, err, shared := s.group.Do(req.String(), func() (any, error) {
		records, err := s.provider.FetchObservations(ctx, req.Country, req.Indicator, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req, err)
		}
		observations, err := normalize.Observations(records)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", req, err)
		}

		series := make(model.Series, 0, len(observations))
		for _, observation := range observations {
			if observation.Year < req.Start || observation.Year > req.End {
				continue
			}
			// Upstream may answer with a different code form (ISO2, lower case);
			// rows are cached under the requested key.
			observation.Country = req.Country
			observation.Indicator = req.Indicator
			series = append(series, observation)
		}

		fetched := store.Range{Country: req.Country, Indicator: req.Indicator, Start: req.Start, End: req.End}
		if err := s.store.StoreFetch(ctx, fetched, series); err != nil {
			s.logger.Error("cache write failed", "request", req.String(), "error", err)
		}
		s.logger.Info("cache miss filled", "request", req.String(), "records", len(records), "rows", len(series))
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("shared upstream fetch", "request", req.String())
	}
	return result.(model.Series), nil
}
