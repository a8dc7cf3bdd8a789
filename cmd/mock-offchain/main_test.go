package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/R3E-Network/lottery_layer/internal/httputil"
)

func TestDriveDevelopment(t *testing.T) {
	var fulfilled atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/lottery/upkeep":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"upkeep_needed": true})
		case r.Method == http.MethodPost && r.URL.Path == "/lottery/upkeep":
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]uint64{"request_id": 3})
		case r.Method == http.MethodPost && r.URL.Path == "/dev/vrf/3/fulfill":
			fulfilled.Store(true)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"winners":         []string{"0x00000000000000000000000000000000000000a1"},
				"winning_numbers": []int{1, 2, 3, 4, 5},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := httputil.NewLotteryClient(httputil.ServiceClientConfig{BaseURL: srv.URL})
	got, err := drive(context.Background(), client, true)
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if !fulfilled.Load() || got == nil || len(got.Winners) != 1 || got.WinningNumbers == nil || got.WinningNumbers[4] != 5 {
		t.Fatalf("unexpected result %+v (fulfilled=%v)", got, fulfilled.Load())
	}
}

func TestDriveSkipsWhenNotNeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"upkeep_needed": false, "reason": "no entries"})
	}))
	defer srv.Close()

	client := httputil.NewLotteryClient(httputil.ServiceClientConfig{BaseURL: srv.URL})
	got, err := drive(context.Background(), client, true)
	if err != nil || got != nil {
		t.Fatalf("expected no-op, got %+v, %v", got, err)
	}
}

func TestDriveRemoteNetworkStopsAfterRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"upkeep_needed": true})
			return
		}
		if r.URL.Path != "/lottery/upkeep" {
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]uint64{"request_id": 9})
	}))
	defer srv.Close()

	client := httputil.NewLotteryClient(httputil.ServiceClientConfig{BaseURL: srv.URL})
	got, err := drive(context.Background(), client, false)
	if err != nil || got != nil {
		t.Fatalf("expected nil result, got %+v, %v", got, err)
	}
}
