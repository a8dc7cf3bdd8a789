// Command mock-offchain drives one draw against a running lotteryd on a
// development network: it checks upkeep, performs it, and fulfils the
// randomness request through the in-process coordinator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/internal/httputil"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "lotteryd base URL")
		network = flag.String("network", "hardhat", "Network the daemon runs on")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := httputil.NewLotteryClient(httputil.ServiceClientConfig{BaseURL: *baseURL})
	result, err := drive(ctx, client, config.IsDevelopmentNetwork(*network))
	if err != nil {
		log.Fatalf("mock-offchain: %v", err)
	}
	if result == nil {
		return
	}
	if result.WinningNumbers != nil {
		fmt.Printf("winning numbers: %v\n", *result.WinningNumbers)
	}
	if len(result.Winners) == 0 {
		fmt.Println("no winners, pool rolls over")
	}
	for _, w := range result.Winners {
		fmt.Printf("winner: %s\n", w.Hex())
	}
}

// drive runs one upkeep cycle. It returns nil when no upkeep was needed or
// the draw was left to a remote coordinator.
func drive(ctx context.Context, client *httputil.LotteryClient, development bool) (*httputil.Winners, error) {
	status, err := client.CheckUpkeep(ctx)
	if err != nil {
		return nil, fmt.Errorf("check upkeep: %w", err)
	}
	if !status.Needed {
		log.Printf("no upkeep needed: %s", status.Reason)
		return nil, nil
	}

	id, err := client.PerformUpkeep(ctx)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			log.Printf("upkeep already performed: %s", se.Message)
			return nil, nil
		}
		return nil, fmt.Errorf("perform upkeep: %w", err)
	}
	log.Printf("randomness requested: %d", id)

	if !development {
		log.Printf("remote coordinator will fulfil request %d", id)
		return nil, nil
	}

	out, err := client.DevFulfil(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fulfil request %d: %w", id, err)
	}
	return &out, nil
}
