package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "hardhat", cfg.Lottery.Network)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Lottery.KeeperPoll)
	assert.Equal(t, "lottery:events", cfg.Redis.Channel)

	lc, err := cfg.LotteryConfig()
	require.NoError(t, err)
	assert.Equal(t, TicketPrice, lc.EntryFee)
	assert.Equal(t, 30*time.Second, lc.Interval)
	assert.Equal(t, uint32(500000), lc.Randomness.CallbackGasLimit)
	assert.Equal(t, uint32(5), lc.Randomness.NumWords)
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOTTERY_NETWORK=goerli\nSERVER_PORT=9090\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOTTERY_NETWORK")
		os.Unsetenv("SERVER_PORT")
	})
	t.Setenv("LOTTERY_INTERVAL", "1m")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())

	lc, err := cfg.LotteryConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, lc.Interval)
	assert.Equal(t, uint64(7203), lc.Randomness.SubscriptionID)
	assert.Equal(t, goerliGasLane, lc.Randomness.KeyHash)
}

func TestLoadNetworksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	doc := `networks:
  sepolia:
    chain_id: 11155111
    ticket_price: 20000000000000000
    interval: 1h
    gas_lane: "0xabc"
    subscription_id: 42
    callback_gas_limit: 300000
    num_words: 5
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("LOTTERY_NETWORKS_FILE", path)
	t.Setenv("LOTTERY_NETWORK", "Sepolia")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	n := cfg.Network()
	assert.Equal(t, "sepolia", n.Name)
	assert.Equal(t, uint64(11155111), n.ChainID)
	assert.Equal(t, time.Hour, n.Interval)
	assert.Equal(t, "0xabc", n.Randomness.KeyHash)
	assert.Equal(t, uint64(42), n.Randomness.SubscriptionID)
	assert.Contains(t, cfg.Networks, "goerli")
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("LOTTERY_NETWORK", "mainnet")
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
}

func TestLoadNetworksFileValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks:\n  x:\n    interval: 10s\n"), 0o600))
	_, err := LoadNetworksFile(path)
	require.Error(t, err)
}
