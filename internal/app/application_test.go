package app

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/events"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

type capturePublisher struct {
	channels []string
}

func (c *capturePublisher) Publish(ctx context.Context, channel string, _ interface{}) *redis.IntCmd {
	c.channels = append(c.channels, channel)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func testConfig() domain.Config {
	return domain.Config{
		EntryFee:   10,
		Interval:   30 * time.Second,
		Randomness: domain.RandomnessParams{KeyHash: "0x01", SubscriptionID: 1, CallbackGasLimit: 500000, NumWords: 5},
	}
}

func TestApplicationLocalRoundTrip(t *testing.T) {
	mock := clock.NewMock()
	pub := &capturePublisher{}
	application, err := New(Options{
		Lottery:      testConfig(),
		Clock:        mock,
		Publisher:    pub,
		RedisChannel: "test:events",
	}, logger.NewDiscard())
	require.NoError(t, err)
	require.NotNil(t, application.LocalVRF)
	require.NotNil(t, application.Treasury)
	assert.Nil(t, application.Keeper)

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	defer application.Stop(ctx)

	player := common.HexToAddress("0x01")
	_, err = application.Lottery.Enter(ctx, player, domain.Guess{1, 2, 3, 4, 5}, 10)
	require.NoError(t, err)

	mock.Add(30 * time.Second)
	id, err := application.Lottery.PerformUpkeep(ctx)
	require.NoError(t, err)
	require.NoError(t, application.LocalVRF.Fulfill(ctx, id))

	assert.Equal(t, domain.StateOpen, application.Lottery.State())
	_, ok := application.Lottery.LastWinningNumbers()
	assert.True(t, ok)
	assert.Len(t, application.Events.RecentByType(events.TypeWinnersPicked, 5), 1)
	assert.Len(t, pub.channels, 3)
	assert.Equal(t, "test:events", pub.channels[0])
}

func TestApplicationWithKeeper(t *testing.T) {
	application, err := New(Options{Lottery: testConfig(), KeeperInterval: time.Minute, AutoFulfil: true}, logger.NewDiscard())
	require.NoError(t, err)
	require.NotNil(t, application.Keeper)

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	require.NoError(t, application.Stop(ctx))
}

func TestApplicationRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{}, logger.NewDiscard())
	require.Error(t, err)
}

func TestApplicationResumesDrawAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mock := clock.NewMock()
	player := common.HexToAddress("0x01")

	first, err := New(Options{Lottery: testConfig(), Store: store, Clock: mock}, logger.NewDiscard())
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	_, err = first.Lottery.Enter(ctx, player, domain.Guess{1, 2, 3, 4, 5}, 10)
	require.NoError(t, err)
	mock.Add(30 * time.Second)
	id, err := first.Lottery.PerformUpkeep(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Stop(ctx))

	second, err := New(Options{Lottery: testConfig(), Store: store, Clock: mock}, logger.NewDiscard())
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	defer second.Stop(ctx)

	assert.Equal(t, domain.StateCalculating, second.Lottery.State())
	pending := second.LocalVRF.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.NoError(t, second.LocalVRF.Fulfill(ctx, id))
	assert.Equal(t, domain.StateOpen, second.Lottery.State())

	_, err = second.Lottery.Enter(ctx, player, domain.Guess{1, 2, 3, 4, 5}, 10)
	require.NoError(t, err)
	mock.Add(30 * time.Second)
	next, err := second.Lottery.PerformUpkeep(ctx)
	require.NoError(t, err)
	assert.Greater(t, next, id)
	require.NoError(t, second.LocalVRF.Fulfill(ctx, next))

	settled, err := second.Lottery.Settlements(ctx, 0)
	require.NoError(t, err)
	require.Len(t, settled, 2)
	assert.NotEqual(t, settled[0].RequestID, settled[1].RequestID)
}

func TestApplicationReservesSettledRequestIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.AppendSettlement(ctx, domain.Settlement{RoundNumber: 1, RequestID: 7})
	require.NoError(t, err)

	application, err := New(Options{Lottery: testConfig(), Store: store}, logger.NewDiscard())
	require.NoError(t, err)
	require.NoError(t, application.Start(ctx))
	defer application.Stop(ctx)

	id, err := application.LocalVRF.RequestRandomWords(ctx, testConfig().Randomness)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestID(8), id)
}
