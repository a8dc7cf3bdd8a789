package httputil

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// Winners is the body returned by the winners and fulfilment endpoints.
type Winners struct {
	Winners        []common.Address `json:"winners"`
	WinningNumbers *domain.Guess    `json:"winning_numbers,omitempty"`
}

// LotteryClient is a typed client for the lottery HTTP API.
type LotteryClient struct {
	*ServiceClient
}

// NewLotteryClient wraps a ServiceClient configured with cfg.
func NewLotteryClient(cfg ServiceClientConfig) *LotteryClient {
	return &LotteryClient{ServiceClient: NewServiceClient(cfg)}
}

// Status returns the round snapshot.
func (c *LotteryClient) Status(ctx context.Context) (domain.Status, error) {
	var out domain.Status
	err := c.GetJSON(ctx, "/lottery", &out)
	return out, err
}

// Enter submits a guess for player paying amount.
func (c *LotteryClient) Enter(ctx context.Context, player common.Address, guess domain.Guess, amount uint64) (domain.Entry, error) {
	body := map[string]interface{}{
		"player":  player.Hex(),
		"numbers": guess[:],
		"amount":  amount,
	}
	var out domain.Entry
	err := c.PostJSON(ctx, "/lottery/entries", body, &out)
	return out, err
}

// CheckUpkeep evaluates the upkeep predicate.
func (c *LotteryClient) CheckUpkeep(ctx context.Context) (domain.UpkeepStatus, error) {
	var out domain.UpkeepStatus
	err := c.GetJSON(ctx, "/lottery/upkeep", &out)
	return out, err
}

// PerformUpkeep closes the round and returns the randomness request id.
func (c *LotteryClient) PerformUpkeep(ctx context.Context) (domain.RequestID, error) {
	var out struct {
		RequestID domain.RequestID `json:"request_id"`
	}
	if err := c.PostJSON(ctx, "/lottery/upkeep", nil, &out); err != nil {
		return 0, err
	}
	return out.RequestID, nil
}

// DevFulfil asks a development daemon's local coordinator to fulfil id.
func (c *LotteryClient) DevFulfil(ctx context.Context, id domain.RequestID) (Winners, error) {
	var out Winners
	err := c.PostJSON(ctx, fmt.Sprintf("/dev/vrf/%d/fulfill", id), nil, &out)
	return out, err
}

// RecentWinners returns the last settlement's winners and numbers.
func (c *LotteryClient) RecentWinners(ctx context.Context) (Winners, error) {
	var out Winners
	err := c.GetJSON(ctx, "/lottery/winners", &out)
	return out, err
}

// Settlements returns up to limit settlements, newest first.
func (c *LotteryClient) Settlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var out []domain.Settlement
	err := c.GetJSON(ctx, "/lottery/settlements?"+q.Encode(), &out)
	return out, err
}
