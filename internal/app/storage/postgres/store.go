package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
)

// roundKey is the primary key of the only row in lottery_rounds.
const roundKey = 1

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.LotteryStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// bigint converts an unsigned value for a BIGINT column.
func bigint(column string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds BIGINT range", column, v)
	}
	return int64(v), nil
}

// --- LotteryStore -----------------------------------------------------------

func (s *Store) SaveRound(ctx context.Context, round domain.Round) error {
	number, err := bigint("round_number", round.Number)
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	snapshot, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("encode round: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lottery_rounds (id, round_number, state, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET round_number = EXCLUDED.round_number,
		    state = EXCLUDED.state,
		    snapshot = EXCLUDED.snapshot,
		    updated_at = EXCLUDED.updated_at
	`, roundKey, number, string(round.State), snapshot, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

func (s *Store) LoadRound(ctx context.Context) (domain.Round, bool, error) {
	var snapshot []byte
	err := s.db.GetContext(ctx, &snapshot, `SELECT snapshot FROM lottery_rounds WHERE id = $1`, roundKey)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Round{}, false, nil
	}
	if err != nil {
		return domain.Round{}, false, fmt.Errorf("load round: %w", err)
	}
	var round domain.Round
	if err := json.Unmarshal(snapshot, &round); err != nil {
		return domain.Round{}, false, fmt.Errorf("decode round: %w", err)
	}
	return round, true, nil
}

type settlementRow struct {
	ID             string    `db:"id"`
	RoundNumber    int64     `db:"round_number"`
	RequestID      int64     `db:"request_id"`
	WinningNumbers []byte    `db:"winning_numbers"`
	EntryCount     int       `db:"entry_count"`
	Winners        []byte    `db:"winners"`
	Payouts        []byte    `db:"payouts"`
	PoolBefore     int64     `db:"pool_before"`
	PaidOut        int64     `db:"paid_out"`
	Rollover       int64     `db:"rollover"`
	SettledAt      time.Time `db:"settled_at"`
}

func (s *Store) AppendSettlement(ctx context.Context, settlement domain.Settlement) (domain.Settlement, error) {
	if settlement.ID == "" {
		settlement.ID = uuid.NewString()
	}
	if settlement.SettledAt.IsZero() {
		settlement.SettledAt = time.Now().UTC()
	}

	var columns [5]int64
	for i, c := range []struct {
		name  string
		value uint64
	}{
		{"round_number", settlement.RoundNumber},
		{"request_id", uint64(settlement.RequestID)},
		{"pool_before", settlement.PoolBefore},
		{"paid_out", settlement.PaidOut},
		{"rollover", settlement.Rollover},
	} {
		v, err := bigint(c.name, c.value)
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("append settlement: %w", err)
		}
		columns[i] = v
	}

	numbersJSON, err := json.Marshal(settlement.WinningNumbers)
	if err != nil {
		return domain.Settlement{}, err
	}
	winnersJSON, err := json.Marshal(settlement.Winners)
	if err != nil {
		return domain.Settlement{}, err
	}
	payoutsJSON, err := json.Marshal(settlement.Payouts)
	if err != nil {
		return domain.Settlement{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lottery_settlements
			(id, round_number, request_id, winning_numbers, entry_count, winners, payouts, pool_before, paid_out, rollover, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, settlement.ID, columns[0], columns[1], numbersJSON, settlement.EntryCount,
		winnersJSON, payoutsJSON, columns[2], columns[3], columns[4], settlement.SettledAt)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("append settlement: %w", err)
	}
	return settlement, nil
}

func (s *Store) ListSettlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	query := `
		SELECT id, round_number, request_id, winning_numbers, entry_count, winners, payouts, pool_before, paid_out, rollover, settled_at
		FROM lottery_settlements
		ORDER BY settled_at DESC, round_number DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var rows []settlementRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}

	result := make([]domain.Settlement, 0, len(rows))
	for _, row := range rows {
		settlement := domain.Settlement{
			ID:          row.ID,
			RoundNumber: uint64(row.RoundNumber),
			RequestID:   domain.RequestID(row.RequestID),
			EntryCount:  row.EntryCount,
			PoolBefore:  uint64(row.PoolBefore),
			PaidOut:     uint64(row.PaidOut),
			Rollover:    uint64(row.Rollover),
			SettledAt:   row.SettledAt.UTC(),
		}
		if err := json.Unmarshal(row.WinningNumbers, &settlement.WinningNumbers); err != nil {
			return nil, fmt.Errorf("decode winning numbers: %w", err)
		}
		if len(row.Winners) > 0 {
			if err := json.Unmarshal(row.Winners, &settlement.Winners); err != nil {
				return nil, fmt.Errorf("decode winners of %s: %w", row.ID, err)
			}
		}
		if len(row.Payouts) > 0 {
			if err := json.Unmarshal(row.Payouts, &settlement.Payouts); err != nil {
				return nil, fmt.Errorf("decode payouts of %s: %w", row.ID, err)
			}
		}
		result = append(result, settlement)
	}
	return result, nil
}
