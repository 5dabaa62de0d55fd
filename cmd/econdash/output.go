package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"

	"econdash/internal/model"
)

func writeObservations(w io.Writer, format string, observations []model.Observation) error {
	points := make([]model.ForecastPoint, 0, len(observations))
	for _, observation := range observations {
		points = append(points, model.ForecastPoint{Observation: observation})
	}
	switch format {
	case "json":
		return encodeJSON(w, observations)
	case "csv":
		return writePointsCSV(w, points, false)
	default:
		return writePointsTable(w, points, false)
	}
}

func writeForecast(w io.Writer, format string, points []model.ForecastPoint) error {
	switch format {
	case "json":
		return encodeJSON(w, points)
	case "csv":
		return writePointsCSV(w, points, true)
	default:
		return writePointsTable(w, points, true)
	}
}

func encodeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writePointsCSV(w io.Writer, points []model.ForecastPoint, provenance bool) error {
	cw := csv.NewWriter(w)
	header := []string{"country", "indicator", "year", "value"}
	if provenance {
		header = append(header, "provenance")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, point := range points {
		value := ""
		if point.Value != nil {
			value = strconv.FormatFloat(*point.Value, 'f', -1, 64)
		}
		row := []string{point.Country, point.Indicator, strconv.Itoa(point.Year), value}
		if provenance {
			row = append(row, string(point.Provenance))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writePointsTable(w io.Writer, points []model.ForecastPoint, provenance bool) error {
	for _, point := range points {
		value := "-"
		if point.Value != nil {
			value = humanize.CommafWithDigits(*point.Value, 2)
		}
		var err error
		if provenance {
			_, err = fmt.Fprintf(w, "%s %s %d %s %s\n", point.Country, point.Indicator, point.Year, value, point.Provenance)
		} else {
			_, err = fmt.Fprintf(w, "%s %s %d %s\n", point.Country, point.Indicator, point.Year, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func checkFormat(format string) error {
	switch format {
	case "table", "json", "csv":
		return nil
	default:
		return fmt.Errorf("unknown format %q (table, json, csv)", format)
	}
}
