package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinYear = 1900
	MaxYear = 2100
)

type Provenance string

const (
	ProvenanceHistorical Provenance = "historical"
	ProvenanceForecast   Provenance = "forecast"
)

type Country struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Region      string `json:"region"`
	IncomeLevel string `json:"income_level,omitempty"`
	CapitalCity string `json:"capital_city,omitempty"`
}

type Indicator struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourceNote string `json:"source_note,omitempty"`
}

// Observation is a single (country, indicator, year) data point. Value is nil
// when the provider reports the year without a number.
type Observation struct {
	Country   string   `json:"country"`
	Indicator string   `json:"indicator"`
	Year      int      `json:"year"`
	Value     *float64 `json:"value"`
}

func (o Observation) HasValue() bool {
	return o.Value != nil
}

type SeriesKey struct {
	Country   string
	Indicator string
}

func (k SeriesKey) String() string {
	return k.Country + "/" + k.Indicator
}

// Series is ordered by year, holds one (country, indicator) pair and no duplicate years.
type Series []Observation

func (s Series) Values() []float64 {
	values := make([]float64, 0, len(s))
	for _, observation := range s {
		if observation.Value != nil {
			values = append(values, *observation.Value)
		}
	}
	return values
}

func (s Series) LastYear() (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1].Year, true
}

type ForecastPoint struct {
	Observation
	Provenance Provenance `json:"provenance"`
	Order      *Order     `json:"order,omitempty"`
}

// Order is an ARIMA(p,d,q) model order.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

var DefaultOrder = Order{P: 1, D: 1, Q: 1}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

func (o Order) Valid() bool {
	return o.P >= 0 && o.D >= 0 && o.Q >= 0
}

// ParseOrder accepts "p,d,q" with optional surrounding parentheses.
func ParseOrder(value string) (Order, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 3 {
		return Order{}, fmt.Errorf("order must have three components, got %q", value)
	}
	numbers := make([]int, 3)
	for i, part := range parts {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Order{}, fmt.Errorf("order component %q is not an integer", part)
		}
		if parsed < 0 {
			return Order{}, fmt.Errorf("order component %d is negative", parsed)
		}
		numbers[i] = parsed
	}
	return Order{P: numbers[0], D: numbers[1], Q: numbers[2]}, nil
}

func Float(value float64) *float64 {
	return &value
}
