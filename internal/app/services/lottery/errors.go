package lottery

import (
	"errors"
	"fmt"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

var (
	ErrPaymentInsufficient   = errors.New("payment below entry fee")
	ErrGuessOutOfRange       = errors.New("guess number out of range")
	ErrRoundNotOpen          = errors.New("round not open")
	ErrPoolOverflow          = errors.New("entry would overflow prize pool")
	ErrUpkeepNotNeeded       = errors.New("upkeep not needed")
	ErrUnknownOrStaleRequest = errors.New("unknown or stale randomness request")
	ErrRandomnessMalformed   = errors.New("randomness fulfilment malformed")
	ErrDisbursementFailure   = errors.New("disbursement failed")
	ErrEntryNotFound         = errors.New("entry not found")
	ErrNothingToWithdraw     = errors.New("nothing to withdraw")
)

// UpkeepNotNeededError carries the round figures observed when PerformUpkeep
// was refused. It matches ErrUpkeepNotNeeded with errors.Is.
type UpkeepNotNeededError struct {
	Reason  string
	Pool    uint64
	Entries int
	State   domain.State
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("upkeep not needed: %s (pool=%d entries=%d state=%s)", e.Reason, e.Pool, e.Entries, e.State)
}

func (e *UpkeepNotNeededError) Unwrap() error { return ErrUpkeepNotNeeded }
