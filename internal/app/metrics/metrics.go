package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lottery_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	entriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "entries_total",
			Help:      "Total number of accepted entries.",
		},
	)

	entryRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "entry_rejections_total",
			Help:      "Entries rejected, by reason.",
		},
		[]string{"reason"},
	)

	poolBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "pool_balance",
			Help:      "Current prize pool in the smallest currency unit.",
		},
	)

	roundState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "round_state",
			Help:      "1 for the state the current round is in, 0 otherwise.",
		},
		[]string{"state"},
	)

	drawsRequested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "draws_requested_total",
			Help:      "Total number of randomness requests issued.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "settlements_total",
			Help:      "Completed settlements, by outcome.",
		},
		[]string{"outcome"},
	)

	payoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "paid_out_total",
			Help:      "Total amount credited to winners.",
		},
	)

	disbursementFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "lottery",
			Name:      "disbursement_failures_total",
			Help:      "Transfers to winners that failed and were left as pending withdrawals.",
		},
	)

	keeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "keeper",
			Name:      "runs_total",
			Help:      "Upkeep evaluations, by result.",
		},
		[]string{"result"},
	)

	keeperDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lottery_layer",
			Subsystem: "keeper",
			Name:      "run_duration_seconds",
			Help:      "Duration of upkeep evaluations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		entriesTotal,
		entryRejections,
		poolBalance,
		roundState,
		drawsRequested,
		settlements,
		payoutsTotal,
		disbursementFailures,
		keeperRuns,
		keeperDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordEntry records an accepted entry and the resulting pool.
func RecordEntry(pool uint64) {
	entriesTotal.Inc()
	poolBalance.Set(float64(pool))
}

// RecordEntryRejected records a rejected entry.
func RecordEntryRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	entryRejections.WithLabelValues(reason).Inc()
}

// RecordRoundState publishes the current state and pool.
func RecordRoundState(state string, pool uint64) {
	for _, s := range []string{"open", "calculating"} {
		v := 0.0
		if s == state {
			v = 1
		}
		roundState.WithLabelValues(s).Set(v)
	}
	poolBalance.Set(float64(pool))
}

// RecordDrawRequested counts an issued randomness request.
func RecordDrawRequested() {
	drawsRequested.Inc()
}

// RecordSettlement records a completed draw. Outcome is "winners" or
// "rollover".
func RecordSettlement(outcome string, paidOut uint64) {
	settlements.WithLabelValues(outcome).Inc()
	payoutsTotal.Add(float64(paidOut))
}

// RecordDisbursementFailure counts a transfer left as a pending withdrawal.
func RecordDisbursementFailure() {
	disbursementFailures.Inc()
}

// RecordKeeperRun records one upkeep evaluation. Result is "performed",
// "skipped" or "error".
func RecordKeeperRun(result string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	keeperRuns.WithLabelValues(result).Inc()
	keeperDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// canonicalPath collapses path parameters so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch {
	case parts[0] == "lottery" && len(parts) >= 3:
		return "/lottery/" + parts[1] + "/:id"
	case parts[0] == "lottery" && len(parts) == 2:
		return "/lottery/" + parts[1]
	case parts[0] == "dev":
		return "/dev/vrf"
	default:
		return "/" + parts[0]
	}
}
