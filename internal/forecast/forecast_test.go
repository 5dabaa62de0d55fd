package forecast

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"econdash/internal/model"
)

func makeSeries(startYear int, values []float64) model.Series {
	series := make(model.Series, len(values))
	for i, value := range values {
		series[i] = model.Observation{
			Country:   "BRA",
			Indicator: "NY.GDP.MKTP.CD",
			Year:      startYear + i,
			Value:     model.Float(value),
		}
	}
	return series
}

func trendWithNoise(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		t := float64(i)
		values[i] = 1e12 + 5e10*t + 2e10*math.Sin(1.3*t)
	}
	return values
}

func TestForecastBoundary(t *testing.T) {
	engine := New()

	_, err := engine.Forecast(makeSeries(2000, trendWithNoise(9)), 3, model.DefaultOrder)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("9 points: expected InsufficientDataError, got %v", err)
	}
	if insufficient.Points != 9 || insufficient.Min != MinPoints {
		t.Errorf("error = %+v", insufficient)
	}

	points, err := engine.Forecast(makeSeries(2000, trendWithNoise(10)), 3, model.DefaultOrder)
	if err != nil {
		t.Fatalf("10 points: %v", err)
	}
	if len(points) != 13 {
		t.Errorf("expected 13 points, got %d", len(points))
	}
}

func TestForecastContiguity(t *testing.T) {
	engine := New()
	history := makeSeries(1990, trendWithNoise(31))
	// Gaps in the history must not create gaps after the last year.
	history = append(history[:5], history[7:]...)

	for _, horizon := range []int{1, 5, 12} {
		points, err := engine.Forecast(history, horizon, model.DefaultOrder)
		if err != nil {
			t.Fatalf("horizon %d: %v", horizon, err)
		}
		if len(points) != len(history)+horizon {
			t.Fatalf("horizon %d: got %d points", horizon, len(points))
		}
		tail := points[len(points)-horizon:]
		for i, point := range tail {
			if point.Year != 2020+i+1 {
				t.Errorf("horizon %d: point %d year = %d, want %d", horizon, i, point.Year, 2020+i+1)
			}
			if point.Provenance != model.ProvenanceForecast {
				t.Errorf("projected point has provenance %s", point.Provenance)
			}
			if point.Order == nil || *point.Order != model.DefaultOrder {
				t.Errorf("projected point order = %v", point.Order)
			}
			if point.Value == nil || math.IsNaN(*point.Value) {
				t.Errorf("projected point has no value")
			}
			if point.Country != "BRA" || point.Indicator != "NY.GDP.MKTP.CD" {
				t.Errorf("projected point key = %s/%s", point.Country, point.Indicator)
			}
		}
		for _, point := range points[:len(history)] {
			if point.Provenance != model.ProvenanceHistorical || point.Order != nil {
				t.Errorf("historical point %d tagged %s", point.Year, point.Provenance)
			}
		}
	}
}

func TestForecastDropsMissingAndDuplicates(t *testing.T) {
	engine := New()
	series := makeSeries(2000, trendWithNoise(10))
	series[3].Value = nil
	series = append(series, series[9])

	_, err := engine.Forecast(series, 2, model.DefaultOrder)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) || insufficient.Points != 9 {
		t.Fatalf("expected 9 usable points, got %v", err)
	}
}

func TestForecastUnorderedInput(t *testing.T) {
	engine := New()
	series := makeSeries(2000, trendWithNoise(12))
	series[0], series[11] = series[11], series[0]

	points, err := engine.Forecast(series, 2, model.DefaultOrder)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	for i := 1; i < len(points); i++ {
		if points[i].Year <= points[i-1].Year {
			t.Fatalf("years not strictly increasing at %d: %d after %d", i, points[i].Year, points[i-1].Year)
		}
	}
	if points[len(points)-1].Year != 2013 {
		t.Errorf("last year = %d, want 2013", points[len(points)-1].Year)
	}
}

func TestForecastInvalidArguments(t *testing.T) {
	engine := New()
	series := makeSeries(2000, trendWithNoise(12))

	if _, err := engine.Forecast(series, 0, model.DefaultOrder); !errors.Is(err, ErrInvalidHorizon) {
		t.Errorf("horizon 0: got %v", err)
	}
	if _, err := engine.Forecast(series, 1, model.Order{P: -1, D: 1, Q: 1}); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("negative order: got %v", err)
	}
}

func TestForecastOrderTooLargeIsFitError(t *testing.T) {
	engine := New()
	_, err := engine.Forecast(makeSeries(2000, trendWithNoise(10)), 1, model.Order{P: 5, D: 2, Q: 3})
	var fitErr *ModelFitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("expected ModelFitError, got %v", err)
	}
	if fitErr.Order != (model.Order{P: 5, D: 2, Q: 3}) {
		t.Errorf("error order = %v", fitErr.Order)
	}
}

func TestForecastHugeOrderIsFitError(t *testing.T) {
	orders := []model.Order{
		{P: 1, D: math.MaxInt, Q: 1},
		{P: math.MaxInt, D: 0, Q: 1},
		{P: 1, D: 0, Q: math.MaxInt},
		{P: 1, D: 1_000_000_000, Q: 1},
	}
	for _, order := range orders {
		t.Run(order.String(), func(t *testing.T) {
			_, err := New().Forecast(makeSeries(2000, trendWithNoise(12)), 1, order)
			var fitErr *ModelFitError
			if !errors.As(err, &fitErr) {
				t.Fatalf("expected ModelFitError, got %v", err)
			}
		})
	}
}

func TestWithMinPointsCannotLowerFloor(t *testing.T) {
	engine := New(WithMinPoints(3))
	_, err := engine.Forecast(makeSeries(2000, trendWithNoise(9)), 1, model.DefaultOrder)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}

	engine = New(WithMinPoints(15))
	_, err = engine.Forecast(makeSeries(2000, trendWithNoise(12)), 1, model.DefaultOrder)
	if !errors.As(err, &insufficient) || insufficient.Min != 15 {
		t.Fatalf("expected floor 15, got %v", err)
	}
}

func TestRandomWalkForecastIsLastValue(t *testing.T) {
	values := []float64{3, 5, 4, 8, 7, 9, 12, 11, 10, 14}
	fitted, err := Fit(values, model.Order{P: 0, D: 1, Q: 0})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for i, value := range fitted.Forecast(4) {
		if value != 14 {
			t.Errorf("step %d = %v, want 14", i, value)
		}
	}
}

func TestFitRecoversAR1(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const phi = 0.6
	values := make([]float64, 400)
	for i := 1; i < len(values); i++ {
		values[i] = phi*values[i-1] + rng.NormFloat64()
	}
	for i := range values {
		values[i] += 50
	}

	fitted, err := Fit(values, model.Order{P: 1, D: 0, Q: 0})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(fitted.AR[0]-phi) > 0.15 {
		t.Errorf("AR coefficient = %.3f, want about %.1f", fitted.AR[0], phi)
	}
	if math.Abs(fitted.Mean-50) > 1 {
		t.Errorf("mean = %.3f, want about 50", fitted.Mean)
	}
	if math.Abs(fitted.Sigma2-1) > 0.3 {
		t.Errorf("sigma2 = %.3f, want about 1", fitted.Sigma2)
	}

	// Forecasts decay toward the mean.
	projected := fitted.Forecast(50)
	if math.Abs(projected[49]-fitted.Mean) > 0.01 {
		t.Errorf("long-horizon forecast %.3f did not revert to mean %.3f", projected[49], fitted.Mean)
	}
}

func TestConstrainStationary(t *testing.T) {
	for _, x := range [][]float64{{0}, {10, -10}, {1e6, 1e6, 1e6}} {
		coefficients := constrainStationary(x)
		if len(coefficients) != len(x) {
			t.Fatalf("len = %d, want %d", len(coefficients), len(x))
		}
		for _, c := range coefficients {
			if math.IsNaN(c) {
				t.Fatalf("NaN coefficient for %v", x)
			}
		}
		if len(x) == 1 && math.Abs(coefficients[0]) >= 1 {
			t.Errorf("AR(1) coefficient %v is not stationary", coefficients[0])
		}
	}
}
