package worldbank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewWithConfig(Config{
		BaseURL:         server.URL,
		PerPage:         2,
		Timeout:         2 * time.Second,
		RateLimitPerSec: 1000,
		RateLimitBurst:  100,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	return client, server
}

func TestFetchAllPaginates(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/country/BRA/indicator/NY.GDP.MKTP.CD" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("format") != "json" || query.Get("per_page") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if query.Get("date") != "2010:2015" {
			t.Errorf("date param = %q", query.Get("date"))
		}
		page, _ := strconv.Atoi(query.Get("page"))
		fmt.Fprintf(w, `[{"page":%d,"pages":3,"per_page":"2","total":5},[{"date":"%d"},{"date":"%d"}]]`, page, 2000+page*2, 2001+page*2)
	})

	records, err := client.FetchObservations(context.Background(), "BRA", "NY.GDP.MKTP.CD", 2010, 2015)
	if err != nil {
		t.Fatalf("FetchObservations: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 page requests, got %d", got)
	}
	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(records))
	}
	if records[0]["date"] != "2002" || records[5]["date"] != "2007" {
		t.Errorf("records out of order: first=%v last=%v", records[0]["date"], records[5]["date"])
	}
}

func TestFetchAllNullRecordsIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"page":1,"pages":0,"per_page":"2","total":0},null]`)
	})

	records, err := client.FetchCountries(context.Background())
	if err != nil {
		t.Fatalf("FetchCountries: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestFetchAllFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		malformed  bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantStatus: 500},
		{name: "not found", status: http.StatusNotFound, body: "missing", wantStatus: 404},
		{name: "message envelope", status: http.StatusOK, body: `[{"message":[{"id":"120","key":"Invalid value","value":"bad country"}]}]`, wantStatus: 200, malformed: true},
		{name: "not json", status: http.StatusOK, body: `<html></html>`, wantStatus: 200, malformed: true},
		{name: "empty array", status: http.StatusOK, body: `[]`, wantStatus: 200, malformed: true},
		{name: "no page count", status: http.StatusOK, body: `[{"page":1},[]]`, wantStatus: 200, malformed: true},
		{name: "records not objects", status: http.StatusOK, body: `[{"pages":1},["a"]]`, wantStatus: 200, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			records, err := client.FetchIndicators(context.Background())
			if records != nil {
				t.Errorf("expected no partial records, got %d", len(records))
			}
			var upstreamErr *UpstreamError
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upstreamErr.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", upstreamErr.StatusCode, tt.wantStatus)
			}
			if upstreamErr.URL == "" || upstreamErr.Params.Get("page") != "1" {
				t.Errorf("error lacks request context: %+v", upstreamErr)
			}
			if got := upstreamErr.URL[:len(server.URL)]; got != server.URL {
				t.Errorf("url = %s", upstreamErr.URL)
			}
			if errors.Is(err, ErrMalformedEnvelope) != tt.malformed {
				t.Errorf("malformed = %v, want %v (err: %v)", !tt.malformed, tt.malformed, err)
			}
		})
	}
}

func TestFetchAllFailsMidPagination(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"page":1,"pages":2},[{"id":"BRA"}]]`)
	})

	records, err := client.FetchCountries(context.Background())
	if err == nil {
		t.Fatalf("expected error, got %d records", len(records))
	}
	if records != nil {
		t.Errorf("partial records returned: %v", records)
	}
}

func TestFetchAllTransportError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.FetchCountries(context.Background())
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstreamErr.StatusCode != 0 {
		t.Errorf("transport failure should carry no status, got %d", upstreamErr.StatusCode)
	}
}

func TestFetchAllDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `[{"pages":1},[]]`)
	}))
	defer server.Close()

	client, err := NewWithConfig(Config{
		BaseURL:         server.URL,
		RateLimitPerSec: 1000,
		FetchDeadline:   20 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	_, err = client.FetchCountries(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
