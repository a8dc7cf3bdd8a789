package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/":                          "/",
		"/healthz":                   "/healthz",
		"/lottery":                   "/lottery",
		"/lottery/entries":           "/lottery/entries",
		"/lottery/entries/3":         "/lottery/entries/:id",
		"/lottery/withdrawals/0xabc": "/lottery/withdrawals/:id",
		"/dev/vrf/1/fulfill":         "/dev/vrf",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordRoundState(t *testing.T) {
	RecordRoundState("calculating", 40)
	if v := testutil.ToFloat64(roundState.WithLabelValues("calculating")); v != 1 {
		t.Fatalf("calculating gauge = %v, want 1", v)
	}
	if v := testutil.ToFloat64(roundState.WithLabelValues("open")); v != 0 {
		t.Fatalf("open gauge = %v, want 0", v)
	}
	if v := testutil.ToFloat64(poolBalance); v != 40 {
		t.Fatalf("pool gauge = %v, want 40", v)
	}
}

func TestInstrumentHandlerCountsRequests(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/lottery/entries/:id", "404"))
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/lottery/entries/9", nil))

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/lottery/entries/:id", "404"))
	if after != before+1 {
		t.Fatalf("request counter = %v, want %v", after, before+1)
	}
}

func TestHandlerExposesLotteryMetrics(t *testing.T) {
	RecordDrawRequested()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "lottery_layer_lottery_draws_requested_total") {
		t.Fatalf("draw counter missing from exposition")
	}
}
