package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"econdash/internal/model"
	"econdash/internal/store"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers, so a series write is never
	// interleaved with a read of the same key.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) FetchSeries(ctx context.Context, country, indicator string, start, end int) (model.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT country, indicator, year, value
		FROM indicator_data
		WHERE country = ? AND indicator = ? AND year BETWEEN ? AND ?
		ORDER BY year
	`, country, indicator, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make(model.Series, 0)
	for rows.Next() {
		observation, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		series = append(series, observation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

func (s *Store) ListObservations(ctx context.Context, filter store.ObservationFilter) ([]model.Observation, error) {
	query := `SELECT country, indicator, year, value FROM indicator_data WHERE 1 = 1`
	args := []any{}
	if strings.TrimSpace(filter.Country) != "" {
		query += " AND country = ?"
		args = append(args, filter.Country)
	}
	if strings.TrimSpace(filter.Indicator) != "" {
		query += " AND indicator = ?"
		args = append(args, filter.Indicator)
	}
	query += " ORDER BY country, indicator, year"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	observations := make([]model.Observation, 0)
	for rows.Next() {
		observation, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, observation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return observations, nil
}

func (s *Store) UpsertObservations(ctx context.Context, observations []model.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertObservations(ctx, tx, observations, s.now().UTC())
	})
}

func (s *Store) StoreFetch(ctx context.Context, fetched store.Range, observations []model.Observation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC()
		if err := upsertObservations(ctx, tx, observations, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fetch_ranges (country, indicator, start_year, end_year, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(country, indicator, start_year, end_year)
			DO UPDATE SET fetched_at = excluded.fetched_at
		`, fetched.Country, fetched.Indicator, fetched.Start, fetched.End, now)
		return err
	})
}

func (s *Store) Covered(ctx context.Context, country, indicator string, start, end int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fetch_ranges
		WHERE country = ? AND indicator = ? AND start_year <= ? AND end_year >= ?
	`, country, indicator, start, end).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReplaceCountries swaps the whole table in one transaction.
func (s *Store) ReplaceCountries(ctx context.Context, countries []model.Country) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM countries`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO countries (id, name, region, income_level, capital_city)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				region = excluded.region,
				income_level = excluded.income_level,
				capital_city = excluded.capital_city
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, country := range countries {
			if _, err := stmt.ExecContext(ctx, country.ID, country.Name, country.Region, country.IncomeLevel, country.CapitalCity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReplaceIndicators(ctx context.Context, indicators []model.Indicator) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM indicators`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO indicators (id, name, source_note)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				source_note = excluded.source_note
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, indicator := range indicators {
			if _, err := stmt.ExecContext(ctx, indicator.ID, indicator.Name, indicator.SourceNote); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListCountries(ctx context.Context) ([]model.Country, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, region, income_level, capital_city FROM countries ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countries := make([]model.Country, 0)
	for rows.Next() {
		var country model.Country
		if err := rows.Scan(&country.ID, &country.Name, &country.Region, &country.IncomeLevel, &country.CapitalCity); err != nil {
			return nil, err
		}
		countries = append(countries, country)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return countries, nil
}

func (s *Store) ListIndicators(ctx context.Context) ([]model.Indicator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, source_note FROM indicators ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indicators := make([]model.Indicator, 0)
	for rows.Next() {
		var indicator model.Indicator
		if err := rows.Scan(&indicator.ID, &indicator.Name, &indicator.SourceNote); err != nil {
			return nil, err
		}
		indicators = append(indicators, indicator)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return indicators, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertObservations(ctx context.Context, tx *sql.Tx, observations []model.Observation, now time.Time) error {
	if len(observations) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO indicator_data (country, indicator, year, value, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(country, indicator, year)
		DO UPDATE SET
			value = excluded.value,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, observation := range observations {
		if observation.Value == nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			observation.Country,
			observation.Indicator,
			observation.Year,
			*observation.Value,
			now,
		); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(row scanner) (model.Observation, error) {
	var observation model.Observation
	var value float64
	if err := row.Scan(&observation.Country, &observation.Indicator, &observation.Year, &value); err != nil {
		return model.Observation{}, err
	}
	observation.Value = model.Float(value)
	return observation, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS indicator_data (
			country TEXT NOT NULL,
			indicator TEXT NOT NULL,
			year INTEGER NOT NULL,
			value REAL NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (country, indicator, year)
		);`,
		`CREATE TABLE IF NOT EXISTS fetch_ranges (
			country TEXT NOT NULL,
			indicator TEXT NOT NULL,
			start_year INTEGER NOT NULL,
			end_year INTEGER NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (country, indicator, start_year, end_year)
		);`,
		`CREATE TABLE IF NOT EXISTS countries (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			region TEXT NOT NULL,
			income_level TEXT NOT NULL DEFAULT '',
			capital_city TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS indicators (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_note TEXT NOT NULL DEFAULT ''
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

var _ store.Store = (*Store)(nil)
