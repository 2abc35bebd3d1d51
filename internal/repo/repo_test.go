package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Repo{db: db}, mock
}

func TestUpsertMarketReturnsID(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	want := uuid.New()

	mock.ExpectQuery("INSERT INTO markets").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(want.String()),
	)

	m := types.Market{
		ConditionID: "cond-1",
		Kind:        types.KindUpDown,
		Asset:       "BTC",
		Timeframe:   "1h",
		YesTokenID:  "yes-1",
		NoTokenID:   "no-1",
		Name:        "Will BTC go up?",
		EndTime:     time.Now().Add(time.Hour),
		Venue:       types.Polymarket,
	}
	got, err := r.UpsertMarket(context.Background(), m)
	if err != nil {
		t.Fatalf("UpsertMarket: %v", err)
	}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeactivateExpiredMarketsReturnsRowCount(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE markets").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := r.DeactivateExpiredMarkets(context.Background())
	if err != nil {
		t.Fatalf("DeactivateExpiredMarkets: %v", err)
	}
	if n != 3 {
		t.Errorf("rows affected = %d, want 3", n)
	}
}

func TestGetActiveMarketsScansRows(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "condition_id", "market_type", "asset", "timeframe", "yes_token_id", "no_token_id",
		"name", "end_time", "is_active", "discovered_at", "updated_at", "venue",
	}).AddRow(id.String(), "cond-1", "up_down", "BTC", "1h", "yes-1", "no-1", "Will BTC go up?", now.Add(time.Hour), true, now, now, "polymarket")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	markets, err := r.GetActiveMarkets(context.Background())
	if err != nil {
		t.Fatalf("GetActiveMarkets: %v", err)
	}
	if len(markets) != 1 || markets[0].ID != id || markets[0].Kind != types.KindUpDown {
		t.Errorf("got %+v", markets)
	}
}

func TestCreatePositionReturnsID(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	want := uuid.New()
	mock.ExpectQuery("INSERT INTO positions").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(want.String()),
	)

	got, err := r.CreatePosition(context.Background(), uuid.New(), decimal.NewFromInt(10), decimal.NewFromInt(10), decimal.NewFromInt(5), true)
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRecordTradeInsertsRow(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	want := uuid.New()
	mock.ExpectQuery("INSERT INTO trades").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(want.String()),
	)

	trade := types.Trade{
		PositionID:    uuid.New(),
		Side:          types.Yes,
		Action:        "buy",
		Price:         decimal.NewFromFloat(0.5),
		Shares:        decimal.NewFromInt(10),
		OrderID:       "order-1",
		FilledShares:  decimal.NewFromInt(10),
		OrderStatus:   types.OrderFilled,
	}
	got, err := r.RecordTrade(context.Background(), trade)
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGetResolutionReturnsFalseWhenUncached(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)

	_, ok, err := r.GetResolution(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetResolution: %v", err)
	}
	if ok {
		t.Error("expected ok=false for an uncached market")
	}
}

func TestGetResolutionScansCachedRow(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	marketID := uuid.New()
	end := time.Now().Add(-time.Hour)
	resolvedAt := time.Now()
	rows := sqlmock.NewRows([]string{"market_id", "winning_side", "end_time", "resolved_at"}).
		AddRow(marketID.String(), "yes", end, resolvedAt)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	res, ok, err := r.GetResolution(context.Background(), marketID)
	if err != nil {
		t.Fatalf("GetResolution: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a cached market")
	}
	if res.WinningSide != types.Yes {
		t.Errorf("winning side = %v, want yes", res.WinningSide)
	}
}

func TestPutResolutionUpserts(t *testing.T) {
	t.Parallel()
	r, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO market_resolutions").WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.PutResolution(context.Background(), types.Resolution{
		MarketID: uuid.New(), WinningSide: types.No,
		EndTime: time.Now(), ResolvedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PutResolution: %v", err)
	}
}
