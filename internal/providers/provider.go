package providers

import (
	"context"
)

// Record is one raw upstream record as decoded from JSON, numbers kept as json.Number.
type Record = map[string]any

type Provider interface {
	Name() string
	FetchCountries(ctx context.Context) ([]Record, error)
	FetchIndicators(ctx context.Context) ([]Record, error)
	FetchObservations(ctx context.Context, country, indicator string, start, end int) ([]Record, error)
}
