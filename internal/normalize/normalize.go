// Package normalize flattens raw World Bank records into the model types.
//
// Every required field must appear in at least one record of a batch, otherwise
// the whole batch is rejected with a SchemaError. Individual observation rows
// with an unparsable year or a non-numeric value are dropped.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"econdash/internal/model"
	"econdash/internal/providers"
)

type Kind string

const (
	KindCountries    Kind = "countries"
	KindIndicators   Kind = "indicators"
	KindObservations Kind = "observations"
)

var (
	CountryFields        = []string{"id", "name", "region.value"}
	IndicatorFields      = []string{"id", "name"}
	ObservationFields    = []string{"country.id", "indicator.id", "date", "value"}
	countryISO3Field     = "countryiso3code"
	countryIncomeField   = "incomeLevel.value"
	countryCapitalField  = "capitalCity"
	indicatorSourceField = "sourceNote"
)

type SchemaError struct {
	Kind  Kind
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("normalize: %s batch is missing required field %q", e.Kind, e.Field)
}

func Countries(records []providers.Record) ([]model.Country, error) {
	if err := requireFields(KindCountries, records, CountryFields); err != nil {
		return nil, err
	}

	countries := make([]model.Country, 0, len(records))
	for _, record := range records {
		id, _ := getString(record, "id")
		if id == "" {
			continue
		}
		name, _ := getString(record, "name")
		region, _ := getString(record, "region.value")
		income, _ := getString(record, countryIncomeField)
		capital, _ := getString(record, countryCapitalField)
		countries = append(countries, model.Country{
			ID:          strings.ToUpper(id),
			Name:        name,
			Region:      region,
			IncomeLevel: income,
			CapitalCity: capital,
		})
	}
	sort.SliceStable(countries, func(i, j int) bool { return countries[i].ID < countries[j].ID })
	return countries, nil
}

func Indicators(records []providers.Record) ([]model.Indicator, error) {
	if err := requireFields(KindIndicators, records, IndicatorFields); err != nil {
		return nil, err
	}

	indicators := make([]model.Indicator, 0, len(records))
	for _, record := range records {
		id, _ := getString(record, "id")
		if id == "" {
			continue
		}
		name, _ := getString(record, "name")
		note, _ := getString(record, indicatorSourceField)
		indicators = append(indicators, model.Indicator{ID: id, Name: name, SourceNote: note})
	}
	sort.SliceStable(indicators, func(i, j int) bool { return indicators[i].ID < indicators[j].ID })
	return indicators, nil
}

// Observations returns rows sorted by year. Rows with an unparsable or
// out-of-range year, or without a numeric value, are dropped. Duplicate
// (country, indicator, year) keys keep the last record seen.
func Observations(records []providers.Record) ([]model.Observation, error) {
	if err := requireFields(KindObservations, records, ObservationFields); err != nil {
		return nil, err
	}

	type key struct {
		country   string
		indicator string
		year      int
	}
	index := make(map[key]int, len(records))
	observations := make([]model.Observation, 0, len(records))
	for _, record := range records {
		country, ok := getString(record, countryISO3Field)
		if !ok {
			country, _ = getString(record, "country.id")
		}
		indicator, _ := getString(record, "indicator.id")
		if country == "" || indicator == "" {
			continue
		}
		year, ok := parseYear(record)
		if !ok {
			continue
		}
		value, ok := getFloat(record, "value")
		if !ok {
			continue
		}

		observation := model.Observation{
			Country:   strings.ToUpper(country),
			Indicator: indicator,
			Year:      year,
			Value:     model.Float(value),
		}
		k := key{country: observation.Country, indicator: indicator, year: year}
		if i, exists := index[k]; exists {
			observations[i] = observation
			continue
		}
		index[k] = len(observations)
		observations = append(observations, observation)
	}

	sort.SliceStable(observations, func(i, j int) bool {
		a, b := observations[i], observations[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Indicator < b.Indicator
	})
	return observations, nil
}

func requireFields(kind Kind, records []providers.Record, fields []string) error {
	if len(records) == 0 {
		return nil
	}
	for _, field := range fields {
		found := false
		for _, record := range records {
			if _, ok := lookup(record, field); ok {
				found = true
				break
			}
		}
		if !found {
			return &SchemaError{Kind: kind, Field: field}
		}
	}
	return nil
}

// lookup resolves a dotted path through nested objects.
func lookup(record providers.Record, path string) (any, bool) {
	var current any = map[string]any(record)
	for _, part := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func parseYear(record providers.Record) (int, bool) {
	raw, ok := getString(record, "date")
	if !ok {
		return 0, false
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if year < model.MinYear || year > model.MaxYear {
		return 0, false
	}
	return year, true
}

func getString(record providers.Record, path string) (string, bool) {
	value, ok := lookup(record, path)
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	default:
		return "", false
	}
}

func getFloat(record providers.Record, path string) (float64, bool) {
	value, ok := lookup(record, path)
	if !ok {
		return 0, false
	}
	var parsed float64
	switch typed := value.(type) {
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		parsed = f
	case float64:
		parsed = typed
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		parsed = f
	default:
		return 0, false
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}
