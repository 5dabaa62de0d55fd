// Package catalog keeps the country and indicator reference tables in memory.
//
// A snapshot is replaced as a whole, so readers never see a mix of old and new
// tables. Expired snapshots keep being served while a refresh runs in the
// background; only a cold catalog makes the caller wait for upstream.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"econdash/internal/model"
	"econdash/internal/normalize"
	"econdash/internal/providers"
	"econdash/internal/store"
)

const DefaultTTL = time.Hour

var ErrEmpty = errors.New("catalog: no reference data available")

type Snapshot struct {
	Countries  []model.Country
	Indicators []model.Indicator
	LoadedAt   time.Time
}

type Catalog struct {
	provider providers.Provider
	store    store.Store
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

type Option func(*Catalog)

func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now; the clock must be monotonic for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

func New(provider providers.Provider, st store.Store, logger *slog.Logger, opts ...Option) *Catalog {
	if st == nil {
		st = &store.NopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		provider: provider,
		store:    st,
		logger:   logger.With("component", "catalog"),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load installs the persisted tables as an expired snapshot, so the first
// access serves them while a refresh runs in the background.
func (c *Catalog) Load(ctx context.Context) {
	countries, err := c.store.ListCountries(ctx)
	if err != nil {
		c.logger.Warn("load persisted countries failed", "error", err)
	}
	indicators, err := c.store.ListIndicators(ctx)
	if err != nil {
		c.logger.Warn("load persisted indicators failed", "error", err)
	}
	if len(countries) > 0 || len(indicators) > 0 {
		// Zero LoadedAt marks the snapshot as already expired.
		c.current.Store(&Snapshot{Countries: countries, Indicators: indicators})
		c.logger.Info("loaded persisted reference data", "countries", len(countries), "indicators", len(indicators))
	}
}

// Warm runs Load, then refreshes from upstream. A failed refresh is logged
// and leaves the persisted tables in place.
func (c *Catalog) Warm(ctx context.Context) {
	c.Load(ctx)
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("reference data refresh failed, keeping previous state", "error", err)
	}
}

// Run refreshes the catalog every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("scheduled refresh failed, keeping previous state", "error", err)
			}
		}
	}
}

// Refresh fetches both tables and swaps them in only if both succeed.
// Concurrent callers share one upstream fetch.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Catalog) refresh(ctx context.Context) error {
	var countries []model.Country
	var indicators []model.Indicator

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := c.provider.FetchCountries(gctx)
		if err != nil {
			return fmt.Errorf("fetch countries: %w", err)
		}
		countries, err = normalize.Countries(records)
		return err
	})
	g.Go(func() error {
		records, err := c.provider.FetchIndicators(gctx)
		if err != nil {
			return fmt.Errorf("fetch indicators: %w", err)
		}
		indicators, err = normalize.Indicators(records)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.store.ReplaceCountries(ctx, countries); err != nil {
		c.logger.Warn("persist countries failed", "error", err)
	}
	if err := c.store.ReplaceIndicators(ctx, indicators); err != nil {
		c.logger.Warn("persist indicators failed", "error", err)
	}

	c.current.Store(&Snapshot{
		Countries:  countries,
		Indicators: indicators,
		LoadedAt:   c.now(),
	})
	c.logger.Info("reference data refreshed", "countries", len(countries), "indicators", len(indicators))
	return nil
}

func (c *Catalog) Countries(ctx context.Context) ([]model.Country, error) {
	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Countries, nil
}

func (c *Catalog) Indicators(ctx context.Context) ([]model.Indicator, error) {
	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Indicators, nil
}

// Snapshot returns the current snapshot without triggering a refresh.
func (c *Catalog) Snapshot() (*Snapshot, bool) {
	snapshot := c.current.Load()
	return snapshot, snapshot != nil
}

func (c *Catalog) snapshot(ctx context.Context) (*Snapshot, error) {
	snapshot := c.current.Load()
	if snapshot == nil {
		if err := c.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmpty, err)
		}
		if snapshot = c.current.Load(); snapshot == nil {
			return nil, ErrEmpty
		}
		return snapshot, nil
	}

	if c.expired(snapshot) {
		c.refreshInBackground(ctx)
	}
	return snapshot, nil
}

func (c *Catalog) expired(snapshot *Snapshot) bool {
	return snapshot.LoadedAt.IsZero() || c.now().Sub(snapshot.LoadedAt) > c.ttl
}

func (c *Catalog) refreshInBackground(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	ch := c.group.DoChan("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	go func() {
		result := <-ch
		if result.Err != nil {
			c.logger.Warn("background refresh failed, serving stale reference data", "error", result.Err)
		}
	}()
}
