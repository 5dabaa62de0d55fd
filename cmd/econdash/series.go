package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"econdash/internal/model"
	"econdash/internal/query"
)

var seriesCmd = &cobra.Command{
	Use:   "series COUNTRY INDICATOR",
	Short: "Print an indicator series, fetching and caching it on a miss",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")
		format, _ := cmd.Flags().GetString("format")
		normalized, _ := cmd.Flags().GetBool("normalized")
		if err := checkFormat(format); err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		req := query.Request{Country: args[0], Indicator: args[1], Start: start, End: end}
		if normalized {
			points, err := a.service.GetNormalizedSeries(cmd.Context(), req)
			if err != nil {
				return err
			}
			if format == "json" {
				return encodeJSON(cmd.OutOrStdout(), points)
			}
			for _, point := range points {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %g\n", point.Year, point.Normalized)
			}
			return nil
		}

		series, err := a.service.GetSeries(cmd.Context(), req)
		if err != nil {
			return err
		}
		return writeObservations(cmd.OutOrStdout(), format, series)
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast COUNTRY INDICATOR",
	Short: "Fit an ARIMA model to a series and print the projection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")
		horizon, _ := cmd.Flags().GetInt("years-ahead")
		rawOrder, _ := cmd.Flags().GetString("order")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		if end == 0 {
			end = time.Now().Year()
		}

		order, err := cfg.Forecast.Order()
		if err != nil {
			return err
		}
		if rawOrder != "" {
			if order, err = model.ParseOrder(rawOrder); err != nil {
				return err
			}
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		req := query.Request{Country: args[0], Indicator: args[1], Start: start, End: end}
		points, err := a.service.GetForecast(cmd.Context(), req, horizon, order)
		if err != nil {
			return err
		}
		return writeForecast(cmd.OutOrStdout(), format, points)
	},
}

func init() {
	seriesCmd.Flags().Int("start", 2000, "first year")
	seriesCmd.Flags().Int("end", 2022, "last year")
	seriesCmd.Flags().String("format", "table", "output format (table, json, csv)")
	seriesCmd.Flags().Bool("normalized", false, "print value / 1e6 per year")

	forecastCmd.Flags().Int("start", 1960, "first year used for fitting")
	forecastCmd.Flags().Int("end", 0, "last year used for fitting (default: current year)")
	forecastCmd.Flags().Int("years-ahead", 5, "number of years to project")
	forecastCmd.Flags().String("order", "", "ARIMA order p,d,q (default: forecast.default_order)")
	forecastCmd.Flags().String("format", "table", "output format (table, json, csv)")

	rootCmd.AddCommand(seriesCmd)
	rootCmd.AddCommand(forecastCmd)
}
