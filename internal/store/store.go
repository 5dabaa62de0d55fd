package store

import (
	"context"

	"econdash/internal/model"
)

// Range is an inclusive year span requested from upstream for one series.
type Range struct {
	Country   string
	Indicator string
	Start     int
	End       int
}

type ObservationFilter struct {
	Country   string
	Indicator string
}

type Store interface {
	// FetchSeries returns cached rows for the range ordered by year, empty when absent.
	FetchSeries(ctx context.Context, country, indicator string, start, end int) (model.Series, error)
	// UpsertObservations writes rows keyed by (country, indicator, year); last write wins.
	UpsertObservations(ctx context.Context, observations []model.Observation) error
	// StoreFetch upserts rows and records that fetched was requested upstream, atomically.
	StoreFetch(ctx context.Context, fetched Range, observations []model.Observation) error
	// Covered reports whether a previous fetch spanned the whole range.
	Covered(ctx context.Context, country, indicator string, start, end int) (bool, error)
	ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error)

	ReplaceCountries(ctx context.Context, countries []model.Country) error
	ReplaceIndicators(ctx context.Context, indicators []model.Indicator) error
	ListCountries(ctx context.Context) ([]model.Country, error)
	ListIndicators(ctx context.Context) ([]model.Indicator, error)
	Close() error
}

// NopStore persists nothing; every read is a miss.
type NopStore struct{}

func (s *NopStore) FetchSeries(ctx context.Context, country, indicator string, start, end int) (model.Series, error) {
	return nil, nil
}

func (s *NopStore) UpsertObservations(ctx context.Context, observations []model.Observation) error {
	return nil
}

func (s *NopStore) StoreFetch(ctx context.Context, fetched Range, observations []model.Observation) error {
	return nil
}

func (s *NopStore) Covered(ctx context.Context, country, indicator string, start, end int) (bool, error) {
	return false, nil
}

func (s *NopStore) ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error) {
	return nil, nil
}

func (s *NopStore) ReplaceCountries(ctx context.Context, countries []model.Country) error {
	return nil
}

func (s *NopStore) ReplaceIndicators(ctx context.Context, indicators []model.Indicator) error {
	return nil
}

func (s *NopStore) ListCountries(ctx context.Context) ([]model.Country, error) {
	return nil, nil
}

func (s *NopStore) ListIndicators(ctx context.Context) ([]model.Indicator, error) {
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}

var _ Store = (*NopStore)(nil)
