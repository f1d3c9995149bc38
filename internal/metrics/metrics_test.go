package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("binance", time.Second)
	m.FetchFailed("binance", "timeout")
	m.CycleCompleted(time.Second)
	m.Opportunity("BTCUSD")
	m.Outage("BTCUSD")
	m.SinkFailed("csv")
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveFetch("binance", 120*time.Millisecond)
	m.FetchFailed("coinbase", "rate_limited")
	m.Opportunity("BTCUSD")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`arbwatch_fetch_attempts_total{source="binance"} 1`,
		`arbwatch_fetch_failures_total{kind="rate_limited",source="coinbase"} 1`,
		`arbwatch_opportunities_total{symbol="BTCUSD"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
