package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"econdash/internal/forecast"
	"econdash/internal/model"
	"econdash/internal/query"
)

const (
	defaultDataStart     = 2000
	defaultDataEnd       = 2022
	defaultForecastStart = 1960
	defaultYearsAhead    = 5
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.svc.ListCountries(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	indicators, err := s.svc.ListIndicators(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indicators)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, defaultDataStart, defaultDataEnd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format, err := parseFormat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	series, err := s.svc.GetSeries(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if format == "csv" {
		rows := make([][]string, 0, len(series))
		for _, observation := range series {
			rows = append(rows, observationRow(observation))
		}
		writeCSV(w, []string{"country", "indicator", "year", "value"}, rows)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleNormalized(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, defaultDataStart, defaultDataEnd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	points, err := s.svc.GetNormalizedSeries(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, defaultForecastStart, s.cfg.Now().Year())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	horizon, err := intParam(r, "years_ahead", defaultYearsAhead)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	order, err := orderParam(r, s.defaultOrder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format, err := parseFormat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	points, err := s.svc.GetForecast(r.Context(), req, horizon, order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if format == "csv" {
		rows := make([][]string, 0, len(points))
		for _, point := range points {
			rows = append(rows, append(observationRow(point.Observation), string(point.Provenance)))
		}
		writeCSV(w, []string{"country", "indicator", "year", "value", "provenance"}, rows)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// fail logs err with the request's series attributes and writes the mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	q := r.URL.Query()
	attrs := []any{
		"path", r.URL.Path,
		"country", q.Get("country"),
		"indicator", q.Get("indicator"),
		"start", q.Get("start"),
		"end", q.Get("end"),
		"status", status,
		"error", err,
	}
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.logger.Error("request failed", attrs...)
		message = "internal error"
	} else {
		s.logger.Warn("request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusFor(err error) int {
	var (
		rangeErr *query.InvalidRangeError
		paramErr *query.InvalidParameterError
		shortErr *forecast.InsufficientDataError
	)
	switch {
	case errors.As(err, &rangeErr), errors.As(err, &paramErr), errors.As(err, &shortErr):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, query.ErrForecastUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func parseRequest(r *http.Request, defaultStart, defaultEnd int) (query.Request, error) {
	start, err := intParam(r, "start", defaultStart)
	if err != nil {
		return query.Request{}, err
	}
	end, err := intParam(r, "end", defaultEnd)
	if err != nil {
		return query.Request{}, err
	}
	q := r.URL.Query()
	return query.Request{
		Country:   q.Get("country"),
		Indicator: q.Get("indicator"),
		Start:     start,
		End:       end,
	}, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &query.InvalidParameterError{Name: name, Value: raw, Reason: "must be an integer"}
	}
	return value, nil
}

// orderParam accepts arima_order=1,1,1 or three repeated arima_order values.
func orderParam(r *http.Request, fallback model.Order) (model.Order, error) {
	values := r.URL.Query()["arima_order"]
	var raw string
	switch len(values) {
	case 0:
		return fallback, nil
	case 1:
		raw = values[0]
	default:
		raw = strings.Join(values, ",")
	}
	order, err := model.ParseOrder(raw)
	if err != nil {
		return model.Order{}, &query.InvalidParameterError{Name: "arima_order", Value: raw, Reason: err.Error()}
	}
	return order, nil
}

func parseFormat(r *http.Request) (string, error) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "json":
		return "json", nil
	case "csv":
		return "csv", nil
	default:
		return "", &query.InvalidParameterError{Name: "format", Value: format, Reason: "must be json or csv"}
	}
}

func observationRow(observation model.Observation) []string {
	value := ""
	if observation.Value != nil {
		value = strconv.FormatFloat(*observation.Value, 'f', -1, 64)
	}
	return []string{observation.Country, observation.Indicator, strconv.Itoa(observation.Year), value}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCSV(w http.ResponseWriter, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	_ = cw.WriteAll(rows)
}
