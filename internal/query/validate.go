package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"econdash/internal/model"
)

const (
	MinHorizon = 1
	MaxHorizon = 50
)

var (
	countryPattern   = regexp.MustCompile(`^[A-Z0-9]{3}$`)
	indicatorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	ErrNoData              = errors.New("query: no data in range")
	ErrForecastUnavailable = errors.New("query: forecasting is not available")
)

type InvalidRangeError struct {
	Start int
	End   int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("query: start year %d is after end year %d", e.Start, e.End)
}

type InvalidParameterError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("query: invalid %s %q: %s", e.Name, e.Value, e.Reason)
}

// Request identifies one series over an inclusive year range.
type Request struct {
	Country   string
	Indicator string
	Start     int
	End       int
}

func (r Request) String() string {
	return fmt.Sprintf("%s/%s %d-%d", r.Country, r.Indicator, r.Start, r.End)
}

// Normalize validates r and returns it with canonical codes.
func (r Request) Normalize() (Request, error) {
	country := strings.ToUpper(strings.TrimSpace(r.Country))
	if !countryPattern.MatchString(country) {
		return Request{}, &InvalidParameterError{Name: "country", Value: r.Country, Reason: "must be a 3 character ISO3 code"}
	}
	indicator := strings.ToUpper(strings.TrimSpace(r.Indicator))
	if indicator == "" {
		return Request{}, &InvalidParameterError{Name: "indicator", Value: r.Indicator, Reason: "must not be empty"}
	}
	if !indicatorPattern.MatchString(indicator) {
		return Request{}, &InvalidParameterError{Name: "indicator", Value: r.Indicator, Reason: "contains unsupported characters"}
	}
	if err := validateYear("start", r.Start); err != nil {
		return Request{}, err
	}
	if err := validateYear("end", r.End); err != nil {
		return Request{}, err
	}
	if r.Start > r.End {
		return Request{}, &InvalidRangeError{Start: r.Start, End: r.End}
	}
	return Request{Country: country, Indicator: indicator, Start: r.Start, End: r.End}, nil
}

func validateYear(name string, year int) error {
	if year < model.MinYear || year > model.MaxYear {
		return &InvalidParameterError{
			Name:   name,
			Value:  fmt.Sprint(year),
			Reason: fmt.Sprintf("must be between %d and %d", model.MinYear, model.MaxYear),
		}
	}
	return nil
}

func validateHorizon(horizon int) error {
	if horizon < MinHorizon || horizon > MaxHorizon {
		return &InvalidParameterError{
			Name:   "horizon",
			Value:  fmt.Sprint(horizon),
			Reason: fmt.Sprintf("must be between %d and %d", MinHorizon, MaxHorizon),
		}
	}
	return nil
}

func validateOrder(order model.Order) error {
	if !order.Valid() {
		return &InvalidParameterError{Name: "order", Value: order.String(), Reason: "components must be non-negative"}
	}
	return nil
}
