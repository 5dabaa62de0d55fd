package main

import (
	"context"
	"fmt"
	"strings"

	"econdash/internal/catalog"
	"econdash/internal/config"
	"econdash/internal/forecast"
	"econdash/internal/providers/worldbank"
	"econdash/internal/query"
	"econdash/internal/store"
	"econdash/internal/store/sqlite"
)

// app holds the wired services shared by the commands.
type app struct {
	store   store.Store
	client  *worldbank.Client
	catalog *catalog.Catalog
	service *query.Service
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client, err := worldbank.NewWithConfig(worldbank.Config{
		BaseURL:         cfg.Upstream.BaseURL,
		PerPage:         cfg.Upstream.PerPage,
		Timeout:         cfg.Upstream.Timeout,
		UserAgent:       cfg.Upstream.UserAgent,
		RateLimitPerSec: cfg.Upstream.RateLimitPerSec,
		RateLimitBurst:  cfg.Upstream.RateLimitBurst,
		FetchDeadline:   cfg.Upstream.FetchDeadline,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cat := catalog.New(client, st, logger, catalog.WithTTL(cfg.Catalog.TTL))
	opts := []query.Option{
		query.WithLogger(logger),
		query.WithCatalog(cat),
		query.WithMemo(cfg.Store.MemoSize, cfg.Store.MemoTTL),
	}
	if cfg.Forecast.Enabled {
		engine := forecast.New(forecast.WithMinPoints(cfg.Forecast.MinPoints), forecast.WithLogger(logger))
		opts = append(opts, query.WithForecaster(engine))
	}

	return &app{
		store:   st,
		client:  client,
		catalog: cat,
		service: query.NewService(client, st, opts...),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// warm loads the persisted catalog and, when refresh is set, refreshes it from upstream.
func (a *app) warm(ctx context.Context, refresh bool) {
	if refresh {
		a.catalog.Warm(ctx)
		return
	}
	a.catalog.Load(ctx)
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

func parseList(value string) []string {
	raw := strings.Split(value, ",")
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		items = append(items, strings.ToUpper(trimmed))
	}
	return items
}
