package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"econdash/internal/providers"
)

func decodeRecords(t *testing.T, payload string) []providers.Record {
	t.Helper()
	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	decoder.UseNumber()
	var records []providers.Record
	if err := decoder.Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return records
}

const observationPayload = `[
	{"indicator":{"id":"NY.GDP.MKTP.CD","value":"GDP"},"country":{"id":"BR","value":"Brazil"},"countryiso3code":"BRA","date":"2012","value":2465188674415.03},
	{"indicator":{"id":"NY.GDP.MKTP.CD","value":"GDP"},"country":{"id":"BR","value":"Brazil"},"countryiso3code":"BRA","date":"2011","value":2616201578192.25},
	{"indicator":{"id":"NY.GDP.MKTP.CD","value":"GDP"},"country":{"id":"BR","value":"Brazil"},"countryiso3code":"BRA","date":"2010","value":null},
	{"indicator":{"id":"NY.GDP.MKTP.CD","value":"GDP"},"country":{"id":"BR","value":"Brazil"},"countryiso3code":"BRA","date":"20x3","value":1},
	{"indicator":{"id":"NY.GDP.MKTP.CD","value":"GDP"},"country":{"id":"BR","value":"Brazil"},"countryiso3code":"BRA","date":"2014","value":"n/a"},
	{"indicator":{"id":"NY.GDP.MKTP.CD","value":"GDP"},"country":{"id":"BR","value":"Brazil"},"countryiso3code":"BRA","date":"2015","value":"1800000000000"}
]`

func TestObservationsDropsInvalidRows(t *testing.T) {
	observations, err := Observations(decodeRecords(t, observationPayload))
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}

	wantYears := []int{2011, 2012, 2015}
	if len(observations) != len(wantYears) {
		t.Fatalf("expected %d rows, got %d: %+v", len(wantYears), len(observations), observations)
	}
	for i, observation := range observations {
		if observation.Year != wantYears[i] {
			t.Errorf("row %d year = %d, want %d", i, observation.Year, wantYears[i])
		}
		if observation.Country != "BRA" || observation.Indicator != "NY.GDP.MKTP.CD" {
			t.Errorf("row %d key = %s/%s", i, observation.Country, observation.Indicator)
		}
		if observation.Value == nil {
			t.Errorf("row %d has nil value", i)
		}
	}
	if *observations[2].Value != 1.8e12 {
		t.Errorf("string value not parsed: %v", *observations[2].Value)
	}
}

func TestObservationsFallsBackToCountryID(t *testing.T) {
	records := decodeRecords(t, `[{"indicator":{"id":"SP.POP.TOTL"},"country":{"id":"br"},"countryiso3code":"","date":"2000","value":5}]`)
	observations, err := Observations(records)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(observations) != 1 || observations[0].Country != "BR" {
		t.Fatalf("unexpected rows: %+v", observations)
	}
}

func TestObservationsLastDuplicateWins(t *testing.T) {
	records := decodeRecords(t, `[
		{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"2001","value":1},
		{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"2000","value":7},
		{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"2001","value":2}
	]`)
	observations, err := Observations(records)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(observations) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(observations))
	}
	if observations[0].Year != 2000 || observations[1].Year != 2001 {
		t.Errorf("not sorted by year: %+v", observations)
	}
	if *observations[1].Value != 2 {
		t.Errorf("duplicate kept value %v, want 2", *observations[1].Value)
	}
}

func TestObservationsOutOfRangeYear(t *testing.T) {
	records := decodeRecords(t, `[
		{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"1850","value":1},
		{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"2101","value":1},
		{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"1900","value":1}
	]`)
	observations, err := Observations(records)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(observations) != 1 || observations[0].Year != 1900 {
		t.Errorf("unexpected rows: %+v", observations)
	}
}

func TestMissingRequiredField(t *testing.T) {
	tests := []struct {
		name    string
		run     func([]providers.Record) error
		payload string
		kind    Kind
		field   string
	}{
		{
			name:    "observation without value",
			run:     func(r []providers.Record) error { _, err := Observations(r); return err },
			payload: `[{"indicator":{"id":"X"},"country":{"id":"BRA"},"date":"2000"}]`,
			kind:    KindObservations,
			field:   "value",
		},
		{
			name:    "observation with flat country",
			run:     func(r []providers.Record) error { _, err := Observations(r); return err },
			payload: `[{"indicator":{"id":"X"},"country":"BRA","date":"2000","value":1}]`,
			kind:    KindObservations,
			field:   "country.id",
		},
		{
			name:    "country without region",
			run:     func(r []providers.Record) error { _, err := Countries(r); return err },
			payload: `[{"id":"BRA","name":"Brazil"}]`,
			kind:    KindCountries,
			field:   "region.value",
		},
		{
			name:    "indicator without name",
			run:     func(r []providers.Record) error { _, err := Indicators(r); return err },
			payload: `[{"id":"NY.GDP.MKTP.CD"}]`,
			kind:    KindIndicators,
			field:   "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(decodeRecords(t, tt.payload))
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if schemaErr.Kind != tt.kind || schemaErr.Field != tt.field {
				t.Errorf("got %s/%s, want %s/%s", schemaErr.Kind, schemaErr.Field, tt.kind, tt.field)
			}
		})
	}
}

func TestFieldPresentInOneRecordIsEnough(t *testing.T) {
	records := decodeRecords(t, `[
		{"id":"ABW","name":"Aruba"},
		{"id":"BRA","name":"Brazil","region":{"id":"LCN","value":"Latin America & Caribbean "},"incomeLevel":{"value":"Upper middle income"},"capitalCity":"Brasilia"}
	]`)
	countries, err := Countries(records)
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(countries) != 2 {
		t.Fatalf("expected 2 countries, got %d", len(countries))
	}
	brazil := countries[1]
	if brazil.Region != "Latin America & Caribbean" || brazil.IncomeLevel != "Upper middle income" || brazil.CapitalCity != "Brasilia" {
		t.Errorf("unexpected country: %+v", brazil)
	}
	if countries[0].Region != "" {
		t.Errorf("missing region should stay empty, got %q", countries[0].Region)
	}
}

func TestIndicatorsSorted(t *testing.T) {
	indicators, err := Indicators(decodeRecords(t, `[
		{"id":"SP.POP.TOTL","name":"Population, total","sourceNote":"Total population"},
		{"id":"NY.GDP.MKTP.CD","name":"GDP (current US$)"}
	]`))
	if err != nil {
		t.Fatalf("Indicators: %v", err)
	}
	if indicators[0].ID != "NY.GDP.MKTP.CD" || indicators[1].SourceNote != "Total population" {
		t.Errorf("unexpected indicators: %+v", indicators)
	}
}

func TestEmptyBatch(t *testing.T) {
	observations, err := Observations(nil)
	if err != nil {
		t.Fatalf("Observations(nil): %v", err)
	}
	if len(observations) != 0 {
		t.Errorf("expected empty result, got %d", len(observations))
	}
}
