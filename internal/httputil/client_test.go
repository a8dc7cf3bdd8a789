package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

func TestNewServiceClient(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{
		BaseURL:    "http://localhost:8080/",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	})

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %s, want http://localhost:8080", client.baseURL)
	}
	if client.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", client.maxRetries)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", client.httpClient.Timeout)
	}
}

func TestNewServiceClient_Defaults(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{BaseURL: "http://localhost:8080"})
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", client.httpClient.Timeout)
	}
	if client.maxRetries != 2 {
		t.Errorf("maxRetries = %d, want 2", client.maxRetries)
	}
}

func TestServiceClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/lottery/upkeep" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]uint64{"request_id": 7})
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL, Token: "tok"})
	var out struct {
		RequestID uint64 `json:"request_id"`
	}
	if err := client.PostJSON(context.Background(), "/lottery/upkeep", struct{}{}, &out); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if out.RequestID != 7 {
		t.Fatalf("request_id = %d, want 7", out.RequestID)
	}
}

func TestServiceClient_RetryOnUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL, MaxRetries: 2})
	client.backoff = time.Millisecond
	if err := client.GetJSON(context.Background(), "/lottery", &map[string]any{}); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"round not open"}`))
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL})
	err := client.GetJSON(context.Background(), "/", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusConflict || statusErr.Message != "round not open" {
		t.Fatalf("unexpected error: %+v", statusErr)
	}
}

func TestReadAllLimits(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	if err != nil || !truncated || string(data) != "abcd" {
		t.Fatalf("ReadAllWithLimit = %q, %v, %v", data, truncated, err)
	}
	if _, err := ReadAllStrict(strings.NewReader("abcdef"), 4); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("ReadAllStrict error = %v", err)
	}
	if data, err := ReadAllStrict(strings.NewReader("abc"), 4); err != nil || string(data) != "abc" {
		t.Fatalf("ReadAllStrict = %q, %v", data, err)
	}
}

func TestServiceClient_RetryAfterTooManyRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL, MaxRetries: 1})
	client.backoff = time.Millisecond
	var out map[string]string
	if err := client.GetJSON(context.Background(), "/healthz", &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 || out["status"] != "ok" {
		t.Fatalf("calls = %d, out = %v", atomic.LoadInt32(&calls), out)
	}
}

func TestLotteryClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/lottery/entries":
			var body struct {
				Player  string `json:"player"`
				Numbers []int  `json:"numbers"`
				Amount  uint64 `json:"amount"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Numbers) != 5 {
				t.Errorf("bad entry body: %v %+v", err, body)
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"index": 0, "player": body.Player, "numbers": body.Numbers, "amount": body.Amount})
		case r.URL.Path == "/lottery/upkeep" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "upkeep not needed: no entries"})
		case r.URL.Path == "/lottery/settlements":
			if r.URL.Query().Get("limit") != "3" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			_ = json.NewEncoder(w).Encode([]interface{}{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewLotteryClient(ServiceClientConfig{BaseURL: server.URL})
	ctx := context.Background()

	entry, err := client.Enter(ctx, common.HexToAddress("0xa1"), domain.Guess{1, 2, 3, 4, 5}, 10)
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if entry.Amount != 10 || entry.Numbers != (domain.Guess{1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected entry %+v", entry)
	}

	_, err = client.PerformUpkeep(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusConflict || !strings.Contains(se.Message, "no entries") {
		t.Fatalf("expected conflict StatusError, got %v", err)
	}

	list, err := client.Settlements(ctx, 3)
	if err != nil || len(list) != 0 {
		t.Fatalf("Settlements() = %v, %v", list, err)
	}
}
