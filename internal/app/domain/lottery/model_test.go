package lottery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuessFromSlice(t *testing.T) {
	g, err := GuessFromSlice([]int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, Guess{1, 2, 3, 4, 5}, g)

	_, err = GuessFromSlice([]int{1, 2, 3})
	assert.Error(t, err)
}

func TestGuessInRange(t *testing.T) {
	assert.True(t, Guess{1, 69, 2, 2, 2}.InRange())
	assert.False(t, Guess{0, 2, 3, 4, 5}.InRange())
	assert.False(t, Guess{70, 2, 3, 4, 5}.InRange())
}

func TestConfigValidate(t *testing.T) {
	ok := Config{EntryFee: 10, Interval: time.Second, Randomness: RandomnessParams{NumWords: 5}}
	require.NoError(t, ok.Validate())

	noFee := ok
	noFee.EntryFee = 0
	assert.Error(t, noFee.Validate())

	noInterval := ok
	noInterval.Interval = 0
	assert.Error(t, noInterval.Validate())

	fewWords := ok
	fewWords.Randomness.NumWords = 4
	assert.Error(t, fewWords.Validate())
}
