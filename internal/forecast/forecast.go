// Package forecast projects annual series forward with an ARIMA model.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"econdash/internal/model"
)

// MinPoints is the smallest number of distinct years a series needs to be fitted.
const MinPoints = 10

var (
	ErrInvalidHorizon = errors.New("forecast: horizon must be at least 1")
	ErrInvalidOrder   = errors.New("forecast: model order components must be non-negative")
)

type InsufficientDataError struct {
	Points int
	Min    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("forecast: series has %d points, at least %d are required", e.Points, e.Min)
}

type ModelFitError struct {
	Order model.Order
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("forecast: ARIMA%s fit failed: %v", e.Order, e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

type Engine struct {
	minPoints int
	logger    *slog.Logger
}

type Option func(*Engine)

// WithMinPoints raises the data floor. Values below MinPoints are ignored.
func WithMinPoints(n int) Option {
	return func(e *Engine) {
		if n > MinPoints {
			e.minPoints = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{minPoints: MinPoints, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "forecast")
	return e
}

// Forecast fits an ARIMA model to series and returns the historical points
// followed by horizon projected points for the years after the last observed one.
func (e *Engine) Forecast(series model.Series, horizon int, order model.Order) ([]model.ForecastPoint, error) {
	if horizon < 1 {
		return nil, ErrInvalidHorizon
	}
	if !order.Valid() {
		return nil, ErrInvalidOrder
	}

	history := prepare(series)
	if len(history) < e.minPoints {
		return nil, &InsufficientDataError{Points: len(history), Min: e.minPoints}
	}

	fitted, err := Fit(history.Values(), order)
	if err != nil {
		return nil, &ModelFitError{Order: order, Err: err}
	}
	projected := fitted.Forecast(horizon)
	for _, value := range projected {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &ModelFitError{Order: order, Err: errors.New("forecast is not finite")}
		}
	}

	last := history[len(history)-1]
	lastYear, _ := history.LastYear()
	e.logger.Debug("fitted model",
		"series", model.SeriesKey{Country: last.Country, Indicator: last.Indicator}.String(),
		"order", order.String(),
		"points", len(history),
		"sigma2", fitted.Sigma2,
		"aic", fitted.AIC(),
	)

	points := make([]model.ForecastPoint, 0, len(history)+horizon)
	for _, observation := range history {
		points = append(points, model.ForecastPoint{
			Observation: observation,
			Provenance:  model.ProvenanceHistorical,
		})
	}
	for h, value := range projected {
		modelOrder := order
		points = append(points, model.ForecastPoint{
			Observation: model.Observation{
				Country:   last.Country,
				Indicator: last.Indicator,
				Year:      lastYear + h + 1,
				Value:     model.Float(value),
			},
			Provenance: model.ProvenanceForecast,
			Order:      &modelOrder,
		})
	}
	return points, nil
}

// prepare drops missing values, orders by year and keeps the last value
// seen for a repeated year.
func prepare(series model.Series) model.Series {
	byYear := make(map[int]model.Observation, len(series))
	for _, observation := range series {
		if !observation.HasValue() || math.IsNaN(*observation.Value) {
			continue
		}
		byYear[observation.Year] = observation
	}
	prepared := make(model.Series, 0, len(byYear))
	for _, observation := range byYear {
		prepared = append(prepared, observation)
	}
	sort.Slice(prepared, func(i, j int) bool { return prepared[i].Year < prepared[j].Year })
	return prepared
}
