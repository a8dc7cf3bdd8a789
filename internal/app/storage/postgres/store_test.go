package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/platform/migrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestSaveRoundUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	round := domain.Round{Number: 3, State: domain.StateCalculating, Pool: 40, PendingRequest: 2}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lottery_rounds")).
		WithArgs(roundKey, int64(3), "calculating", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveRound(context.Background(), round); err != nil {
		t.Fatalf("save round: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRoundPropagatesFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lottery_rounds")).WillReturnError(errors.New("disk full"))

	if err := store.SaveRound(context.Background(), domain.Round{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadRound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM lottery_rounds")).
		WithArgs(roundKey).
		WillReturnError(sql.ErrNoRows)
	if _, ok, err := store.LoadRound(context.Background()); err != nil || ok {
		t.Fatalf("empty table: ok=%v err=%v", ok, err)
	}

	winners := []common.Address{common.HexToAddress("0xabc")}
	snapshot, _ := json.Marshal(domain.Round{Number: 2, State: domain.StateOpen, Pool: 7, RecentWinners: winners})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM lottery_rounds")).
		WithArgs(roundKey).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).AddRow(snapshot))

	round, ok, err := store.LoadRound(context.Background())
	if err != nil || !ok {
		t.Fatalf("load round: ok=%v err=%v", ok, err)
	}
	if round.Number != 2 || round.Pool != 7 || len(round.RecentWinners) != 1 || round.RecentWinners[0] != winners[0] {
		t.Fatalf("unexpected round: %+v", round)
	}
}

func TestListSettlements(t *testing.T) {
	store, mock := newMockStore(t)

	settledAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	winners, _ := json.Marshal([]common.Address{common.HexToAddress("0x01")})
	payouts, _ := json.Marshal([]domain.Payout{{Player: common.HexToAddress("0x01"), Amount: 30}})
	rows := sqlmock.NewRows([]string{
		"id", "round_number", "request_id", "winning_numbers", "entry_count", "winners", "payouts",
		"pool_before", "paid_out", "rollover", "settled_at",
	}).AddRow("s-1", 4, 9, []byte("[1,2,3,4,5]"), 3, winners, payouts, 31, 30, 1, settledAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lottery_settlements")).WithArgs(5).WillReturnRows(rows)

	list, err := store.ListSettlements(context.Background(), 5)
	if err != nil {
		t.Fatalf("list settlements: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(list))
	}
	got := list[0]
	if got.RequestID != 9 || got.WinningNumbers != (domain.Guess{1, 2, 3, 4, 5}) || got.Rollover != 1 {
		t.Fatalf("unexpected settlement: %+v", got)
	}
	if len(got.Payouts) != 1 || got.Payouts[0].Amount != 30 {
		t.Fatalf("unexpected payouts: %+v", got.Payouts)
	}
}

func TestAppendSettlementAssignsID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lottery_settlements")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := store.AppendSettlement(context.Background(), domain.Settlement{RoundNumber: 1, RequestID: 1})
	if err != nil {
		t.Fatalf("append settlement: %v", err)
	}
	if saved.ID == "" || saved.SettledAt.IsZero() {
		t.Fatalf("expected id and timestamp: %+v", saved)
	}
}

func TestListSettlementsRejectsCorruptJSON(t *testing.T) {
	columns := []string{
		"id", "round_number", "request_id", "winning_numbers", "entry_count", "winners", "payouts",
		"pool_before", "paid_out", "rollover", "settled_at",
	}
	for _, tc := range []struct {
		name    string
		winners []byte
		payouts []byte
	}{
		{"winners", []byte("{not json"), []byte("[]")},
		{"payouts", []byte("[]"), []byte(`[{"amount":"x"}]`)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			rows := sqlmock.NewRows(columns).
				AddRow("s-1", 1, 1, []byte("[1,2,3,4,5]"), 1, tc.winners, tc.payouts, 10, 0, 10, time.Now())
			mock.ExpectQuery(regexp.QuoteMeta("FROM lottery_settlements")).WillReturnRows(rows)

			if _, err := store.ListSettlements(context.Background(), 0); err == nil {
				t.Fatalf("expected decode error for corrupt %s", tc.name)
			}
		})
	}
}

func TestBigintColumnsRejectUnsignedOverflow(t *testing.T) {
	store, mock := newMockStore(t)

	if err := store.SaveRound(context.Background(), domain.Round{Number: math.MaxUint64}); err == nil {
		t.Fatalf("expected error for round number above BIGINT")
	}
	_, err := store.AppendSettlement(context.Background(), domain.Settlement{RoundNumber: 1, RequestID: 1, PoolBefore: math.MaxInt64 + 1})
	if err == nil {
		t.Fatalf("expected error for pool above BIGINT")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statement should run: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lottery_settlements")).
		WithArgs(sqlmock.AnyArg(), int64(2), int64(math.MaxInt64), sqlmock.AnyArg(), 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), int64(math.MaxInt64), int64(0), int64(math.MaxInt64), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = store.AppendSettlement(context.Background(), domain.Settlement{
		RoundNumber: 2,
		RequestID:   domain.MaxRequestID,
		PoolBefore:  domain.MaxPool,
		Rollover:    domain.MaxPool,
	})
	if err != nil {
		t.Fatalf("append settlement at BIGINT max: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	round := domain.Round{Number: 1, State: domain.StateOpen, Pool: 10, LastTimestamp: time.Now().UTC()}
	if err := store.SaveRound(ctx, round); err != nil {
		t.Fatalf("save round: %v", err)
	}
	loaded, ok, err := store.LoadRound(ctx)
	if err != nil || !ok || loaded.Pool != 10 {
		t.Fatalf("load round: %+v ok=%v err=%v", loaded, ok, err)
	}
	if _, err := store.AppendSettlement(ctx, domain.Settlement{RoundNumber: 1, RequestID: 1}); err != nil {
		t.Fatalf("append settlement: %v", err)
	}
}
