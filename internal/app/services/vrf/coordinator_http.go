package vrf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// HTTPCoordinator submits randomness requests to an external oracle. The
// oracle answers later through the fulfilment endpoint of the HTTP API.
type HTTPCoordinator struct {
	client      *http.Client
	endpoint    *url.URL
	apiKey      string
	callbackURL string
	log         *logger.Logger
}

// NewHTTPCoordinator constructs a coordinator posting to endpoint.
func NewHTTPCoordinator(client *http.Client, endpoint, apiKey, callbackURL string, log *logger.Logger) (*HTTPCoordinator, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("coordinator endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("vrf-http-coordinator")
	}
	return &HTTPCoordinator{
		client:      client,
		endpoint:    parsed,
		apiKey:      strings.TrimSpace(apiKey),
		callbackURL: strings.TrimSpace(callbackURL),
		log:         log,
	}, nil
}

func (c *HTTPCoordinator) RequestRandomWords(ctx context.Context, params domain.RandomnessParams) (domain.RequestID, error) {
	body, err := json.Marshal(struct {
		domain.RandomnessParams
		CallbackURL string `json:"callback_url,omitempty"`
	}{params, c.callbackURL})
	if err != nil {
		return 0, fmt.Errorf("encode coordinator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build coordinator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("coordinator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return 0, fmt.Errorf("coordinator status %d", resp.StatusCode)
	}

	var payload struct {
		RequestID uint64 `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode coordinator response: %w", err)
	}
	if payload.RequestID == 0 {
		return 0, fmt.Errorf("coordinator returned request id 0")
	}
	if domain.RequestID(payload.RequestID) > domain.MaxRequestID {
		return 0, fmt.Errorf("coordinator returned request id %d above %d", payload.RequestID, domain.MaxRequestID)
	}
	c.log.WithField("request_id", payload.RequestID).Debug("randomness requested")
	return domain.RequestID(payload.RequestID), nil
}
