package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "orderflow/config"
	"orderflow/internal/channel"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/processor"
)

type fixedBook struct{ book models.OrderBook }

func (f fixedBook) Latest() models.OrderBook { return f.book }

type fixedStats struct{ stats processor.DistributorStats }

func (f fixedStats) Stats() processor.DistributorStats { return f.stats }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := appconfig.Default()
	cfg.Dashboard = appconfig.DashboardConfig{Enabled: true, Address: ":0", History: 4, LogHistory: 4}

	book := models.OrderBook{
		Spread: 1,
		Bids:   []models.Level{{Source: models.SourceBinance, Price: 100, Quantity: 2}},
		Asks:   []models.Level{{Source: models.SourceBitstamp, Price: 101, Quantity: 3}},
	}
	srv := NewServer(cfg, logger.Logger(), fixedBook{book}, fixedStats{processor.DistributorStats{Published: 7, Active: 2}}, channel.NewChannels(4, 4))
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	t.Cleanup(srv.cleanup)
	return srv
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                           "127.0.0.1:8080",
		"  :9090  ":                  "0.0.0.0:9090",
		"localhost":                  "localhost:8080",
		"[::1]:443":                  "[::1]:443",
		"::1":                        "[::1]:8080",
		"*:8080":                     "0.0.0.0:8080",
		"http://10.0.0.5:8080":       "10.0.0.5:8080",
		"tcp://localhost:5050":       "localhost:5050",
		"https://status.example.com": "status.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabled(t *testing.T) {
	cfg := appconfig.Default()
	if srv := NewServer(cfg, logger.Logger(), nil, nil, nil); srv != nil {
		t.Fatal("expected nil server when dashboard is disabled")
	}
}

func TestBookEndpointServesLatestMergedBook(t *testing.T) {
	srv := newTestServer(t)

	res := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/book", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var got models.OrderBook
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Spread != 1 || len(got.Bids) != 1 || got.Bids[0].Source != models.SourceBinance {
		t.Fatalf("unexpected book: %+v", got)
	}
}

func TestSpreadEndpointReportsSamples(t *testing.T) {
	srv := newTestServer(t)
	srv.recordSpread(time.Unix(100, 0))
	srv.recordSpread(time.Unix(101, 0))

	res := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/spread", nil))

	var body struct {
		Samples []spreadSample `json:"samples"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(body.Samples))
	}
	if body.Samples[0].BestBid != 100 || body.Samples[0].BestAsk != 101 {
		t.Fatalf("unexpected sample: %+v", body.Samples[0])
	}
}

func TestStatsEndpointIncludesSubscriptionsAndQueues(t *testing.T) {
	srv := newTestServer(t)

	res := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var body map[string]map[string]interface{}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["subscriptions"]["active"].(float64) != 2 {
		t.Fatalf("unexpected subscriptions: %v", body["subscriptions"])
	}
	raw, ok := body["queues"]["raw"].(map[string]interface{})
	if !ok || raw["capacity"].(float64) != 4 {
		t.Fatalf("unexpected queues: %v", body["queues"])
	}
}
