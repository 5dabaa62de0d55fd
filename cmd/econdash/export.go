package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"econdash/internal/model"
	"econdash/internal/store"
)

type metaFile struct {
	GeneratedAt string `json:"generated_at"`
	Rows        int    `json:"rows"`
	Series      int    `json:"series"`
	Country     string `json:"country,omitempty"`
	Indicator   string `json:"indicator,omitempty"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write cached observations to JSON or CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")
		country, _ := cmd.Flags().GetString("country")
		indicator, _ := cmd.Flags().GetString("indicator")

		if strings.TrimSpace(cfg.Store.Path) == "" {
			return errors.New("db path is required")
		}
		st, err := openStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.ObservationFilter{
			Country:   strings.ToUpper(strings.TrimSpace(country)),
			Indicator: strings.ToUpper(strings.TrimSpace(indicator)),
		}
		meta, err := runExport(cmd.Context(), st, outDir, format, filter, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Printf("export complete (out=%s rows=%s series=%s)\n",
			outDir, humanize.Comma(int64(meta.Rows)), humanize.Comma(int64(meta.Series)))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "site/data", "output directory")
	exportCmd.Flags().String("format", "json", "output format (json, csv)")
	exportCmd.Flags().String("country", "", "only export this ISO3 country")
	exportCmd.Flags().String("indicator", "", "only export this indicator code")
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx context.Context, st store.Store, outDir, format string, filter store.ObservationFilter, now time.Time) (metaFile, error) {
	if format != "json" && format != "csv" {
		return metaFile{}, fmt.Errorf("unknown format %q (json, csv)", format)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return metaFile{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	observations, err := st.ListObservations(ctx, filter)
	if err != nil {
		return metaFile{}, fmt.Errorf("failed to load observations: %w", err)
	}

	meta := metaFile{
		GeneratedAt: now.Format(time.RFC3339),
		Rows:        len(observations),
		Series:      countSeries(observations),
		Country:     filter.Country,
		Indicator:   filter.Indicator,
	}

	path := filepath.Join(outDir, "observations."+format)
	file, err := os.Create(path)
	if err != nil {
		return metaFile{}, err
	}
	if format == "csv" {
		err = writeObservations(file, "csv", observations)
	} else {
		err = encodeJSON(file, observations)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return metaFile{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := writeJSON(filepath.Join(outDir, "meta.json"), meta); err != nil {
		return metaFile{}, fmt.Errorf("failed to write meta.json: %w", err)
	}
	return meta, nil
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return encodeJSON(file, value)
}

func countSeries(observations []model.Observation) int {
	keys := make(map[model.SeriesKey]struct{})
	for _, observation := range observations {
		keys[model.SeriesKey{Country: observation.Country, Indicator: observation.Indicator}] = struct{}{}
	}
	return len(keys)
}
