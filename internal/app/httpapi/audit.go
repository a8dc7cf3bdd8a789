package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/lottery_layer/internal/middleware"
)

// auditEntry records one state-changing call against the lottery.
type auditEntry struct {
	Time       time.Time     `json:"time"`
	TraceID    string        `json:"trace_id,omitempty"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Route      string        `json:"route,omitempty"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration_ns"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
}

// auditTrail keeps the last size entries in a ring and mirrors each one to
// an optional sink.
type auditTrail struct {
	mu    sync.Mutex
	ring  []auditEntry
	next  int
	count int
	sink  auditSink
}

type auditSink interface {
	Write(entry auditEntry) error
}

func newAuditTrail(size int, sink auditSink) *auditTrail {
	if size <= 0 {
		size = 200
	}
	return &auditTrail{ring: make([]auditEntry, size), sink: sink}
}

func (a *auditTrail) record(entry auditEntry) {
	a.mu.Lock()
	a.ring[a.next] = entry
	a.next = (a.next + 1) % len(a.ring)
	if a.count < len(a.ring) {
		a.count++
	}
	sink := a.sink
	a.mu.Unlock()

	if sink != nil {
		_ = sink.Write(entry)
	}
}

// recent returns up to limit entries, oldest first. limit <= 0 means all.
func (a *auditTrail) recent(limit int) []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]auditEntry, n)
	start := (a.next - n + len(a.ring)) % len(a.ring)
	for i := 0; i < n; i++ {
		out[i] = a.ring[(start+i)%len(a.ring)]
	}
	return out
}

// wrap records every request that can change lottery state. Reads, CORS
// preflights and the websocket stream are skipped.
func (a *auditTrail) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		entry := auditEntry{
			Time:       start.UTC(),
			TraceID:    w.Header().Get(middleware.TraceHeader),
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     sw.status,
			Duration:   time.Since(start),
			RemoteAddr: r.RemoteAddr,
		}
		if route := mux.CurrentRoute(r); route != nil {
			entry.Route, _ = route.GetPathTemplate()
		}
		a.record(entry)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// jsonlSink appends audit entries to a file, one JSON document per line.
type jsonlSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func openJSONLSink(path string) (auditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &jsonlSink{enc: json.NewEncoder(f)}, nil
}

func (s *jsonlSink) Write(entry auditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(entry)
}
