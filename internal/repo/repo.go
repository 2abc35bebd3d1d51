// Package repo implements the Market Repository (C5): Postgres-backed
// persistence for discovered markets, orderbook snapshots, positions, and
// trades.
//
// Grounded on original_source/src/common/src/repository.rs — same table
// shapes, same upsert-on-conflict semantics, and the same LATERAL JOIN
// query for pulling markets together with their freshest orderbook
// snapshot in one round trip. sqlx's compile-time-checked queries have no
// Go analogue in the example pack; this uses database/sql directly with
// github.com/lib/pq as the Postgres driver, the one real third-party
// Postgres driver available (no pack example imports a Postgres driver —
// the closest analogues use MySQL+GORM or SQLite+raw database/sql; this
// follows the latter's raw-SQL idiom with lib/pq substituted in).
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"predictarb/pkg/types"
)

// Repo wraps a Postgres connection pool with the queries the trading
// pipeline needs.
type Repo struct {
	db *sql.DB
}

// Open connects to databaseURL and verifies connectivity with a ping.
func Open(databaseURL string) (*Repo, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *Repo) Close() error {
	return r.db.Close()
}

// UpsertMarket inserts m or updates the existing row matching its
// condition_id, returning the row's id.
func (r *Repo) UpsertMarket(ctx context.Context, m types.Market) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO markets (condition_id, market_type, asset, timeframe, yes_token_id, no_token_id, name, end_time, is_active, venue)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9)
		ON CONFLICT (condition_id) DO UPDATE SET
			market_type = EXCLUDED.market_type,
			asset = EXCLUDED.asset,
			timeframe = EXCLUDED.timeframe,
			yes_token_id = EXCLUDED.yes_token_id,
			no_token_id = EXCLUDED.no_token_id,
			name = EXCLUDED.name,
			end_time = EXCLUDED.end_time,
			is_active = true,
			updated_at = NOW()
		RETURNING id
	`, m.ConditionID, string(m.Kind), m.Asset, m.Timeframe, m.YesTokenID, m.NoTokenID, m.Name, m.EndTime, string(m.Venue)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert market: %w", err)
	}
	return id, nil
}

// DeactivateExpiredMarkets marks every active market whose end_time has
// passed as inactive, returning the number of rows affected.
func (r *Repo) DeactivateExpiredMarkets(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE markets SET is_active = false, updated_at = NOW()
		WHERE is_active = true AND end_time < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired markets: %w", err)
	}
	return res.RowsAffected()
}

func scanMarket(row *sql.Rows) (types.Market, error) {
	var m types.Market
	var kind string
	var venue string
	err := row.Scan(&m.ID, &m.ConditionID, &kind, &m.Asset, &m.Timeframe, &m.YesTokenID, &m.NoTokenID, &m.Name, &m.EndTime, &m.Active, &m.DiscoveredAt, &m.UpdatedAt, &venue)
	m.Kind = types.MarketKind(kind)
	m.Venue = types.Venue(venue)
	return m, err
}

const marketColumns = `id, condition_id, market_type, asset, timeframe, yes_token_id, no_token_id, name, end_time,
	COALESCE(is_active, true), COALESCE(discovered_at, NOW()), COALESCE(updated_at, NOW()), COALESCE(venue, 'polymarket')`

// GetActiveMarkets returns every active market, nearest expiry first.
func (r *Repo) GetActiveMarkets(ctx context.Context) ([]types.Market, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE is_active = true
		ORDER BY end_time ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get active markets: %w", err)
	}
	defer rows.Close()

	var markets []types.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// GetPriorityMarketsHybrid implements spec §4.5's hybrid scan: crypto
// assets within cryptoHours, everything else within eventDays, combined
// and ordered by end_time.
func (r *Repo) GetPriorityMarketsHybrid(ctx context.Context, cryptoAssets []string, cryptoHours, eventDays int, cryptoLimit, eventLimit int64) ([]types.Market, error) {
	cryptoRows, err := r.db.QueryContext(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE is_active = true
		  AND asset = ANY($1)
		  AND end_time > NOW()
		  AND end_time <= NOW() + make_interval(hours => $2::double precision)
		ORDER BY end_time ASC
		LIMIT $3
	`, pq.Array(cryptoAssets), cryptoHours, cryptoLimit)
	if err != nil {
		return nil, fmt.Errorf("get priority crypto markets: %w", err)
	}
	var markets []types.Market
	for cryptoRows.Next() {
		m, err := scanMarket(cryptoRows)
		if err != nil {
			cryptoRows.Close()
			return nil, fmt.Errorf("scan crypto market: %w", err)
		}
		markets = append(markets, m)
	}
	cryptoRows.Close()
	if err := cryptoRows.Err(); err != nil {
		return nil, err
	}

	eventRows, err := r.db.QueryContext(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE is_active = true
		  AND NOT (asset = ANY($1))
		  AND end_time > NOW()
		  AND end_time <= NOW() + make_interval(days => $2::double precision)
		ORDER BY end_time ASC
		LIMIT $3
	`, pq.Array(cryptoAssets), eventDays, eventLimit)
	if err != nil {
		return nil, fmt.Errorf("get priority event markets: %w", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		m, err := scanMarket(eventRows)
		if err != nil {
			return nil, fmt.Errorf("scan event market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := eventRows.Err(); err != nil {
		return nil, err
	}

	sortMarketsByEndTime(markets)
	return markets, nil
}

func sortMarketsByEndTime(markets []types.Market) {
	for i := 1; i < len(markets); i++ {
		for j := i; j > 0 && markets[j].EndTime.Before(markets[j-1].EndTime); j-- {
			markets[j], markets[j-1] = markets[j-1], markets[j]
		}
	}
}

// InsertOrderbookSnapshot upserts the latest orderbook snapshot for a
// market, keyed on market_id (one row per market, spec §3's "most recent
// wins" persisted-state shape).
func (r *Repo) InsertOrderbookSnapshot(ctx context.Context, snap types.OrderbookSnapshot) error {
	yesAsks, err := json.Marshal(snap.YesAsks)
	if err != nil {
		return fmt.Errorf("marshal yes_asks: %w", err)
	}
	yesBids, err := json.Marshal(snap.YesBids)
	if err != nil {
		return fmt.Errorf("marshal yes_bids: %w", err)
	}
	noAsks, err := json.Marshal(snap.NoAsks)
	if err != nil {
		return fmt.Errorf("marshal no_asks: %w", err)
	}
	noBids, err := json.Marshal(snap.NoBids)
	if err != nil {
		return fmt.Errorf("marshal no_bids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orderbook_snapshots (market_id, yes_best_ask, yes_best_bid, no_best_ask, no_best_bid, yes_asks, yes_bids, no_asks, no_bids, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			yes_best_ask = EXCLUDED.yes_best_ask,
			yes_best_bid = EXCLUDED.yes_best_bid,
			no_best_ask = EXCLUDED.no_best_ask,
			no_best_bid = EXCLUDED.no_best_bid,
			yes_asks = EXCLUDED.yes_asks,
			yes_bids = EXCLUDED.yes_bids,
			no_asks = EXCLUDED.no_asks,
			no_bids = EXCLUDED.no_bids,
			captured_at = NOW()
	`, snap.MarketID, snap.YesBestAsk, snap.YesBestBid, snap.NoBestAsk, snap.NoBestBid, yesAsks, yesBids, noAsks, noBids)
	if err != nil {
		return fmt.Errorf("insert orderbook snapshot: %w", err)
	}
	return nil
}

// MarketWithPrices is the result row of the fresh-orderbook LATERAL JOIN.
type MarketWithPrices struct {
	Market     types.Market
	YesBestAsk decimal.Decimal
	YesBestBid decimal.Decimal
	NoBestAsk  decimal.Decimal
	NoBestBid  decimal.Decimal
	CapturedAt time.Time
}

// GetMarketsWithFreshOrderbooks returns active markets for the given
// assets, expiring within maxExpiry, joined against their freshest
// orderbook snapshot (no older than maxAge). A market with no snapshot
// fresher than maxAge is excluded entirely by the INNER JOIN LATERAL —
// this is the query C7's scan loop drives on each cycle.
func (r *Repo) GetMarketsWithFreshOrderbooks(ctx context.Context, maxAge time.Duration, assets []string, maxExpiry time.Duration) ([]MarketWithPrices, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			m.id, m.condition_id, m.market_type, m.asset, m.timeframe,
			m.yes_token_id, m.no_token_id, m.name, m.end_time,
			COALESCE(m.is_active, true), COALESCE(m.venue, 'polymarket'),
			o.yes_best_ask, o.yes_best_bid, o.no_best_ask, o.no_best_bid, o.captured_at
		FROM markets m
		INNER JOIN LATERAL (
			SELECT yes_best_ask, yes_best_bid, no_best_ask, no_best_bid, captured_at
			FROM orderbook_snapshots
			WHERE market_id = m.id
			  AND captured_at > NOW() - make_interval(secs => $1::double precision)
			ORDER BY captured_at DESC
			LIMIT 1
		) o ON true
		WHERE m.is_active = true
		  AND m.asset = ANY($2)
		  AND m.end_time > NOW()
		  AND m.end_time <= NOW() + make_interval(secs => $3::double precision)
		ORDER BY m.end_time ASC
	`, maxAge.Seconds(), pq.Array(assets), maxExpiry.Seconds())
	if err != nil {
		return nil, fmt.Errorf("get markets with fresh orderbooks: %w", err)
	}
	defer rows.Close()

	var out []MarketWithPrices
	for rows.Next() {
		var row MarketWithPrices
		var kind, venue string
		if err := rows.Scan(&row.Market.ID, &row.Market.ConditionID, &kind, &row.Market.Asset, &row.Market.Timeframe,
			&row.Market.YesTokenID, &row.Market.NoTokenID, &row.Market.Name, &row.Market.EndTime,
			&row.Market.Active, &venue,
			&row.YesBestAsk, &row.YesBestBid, &row.NoBestAsk, &row.NoBestBid, &row.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan market with prices: %w", err)
		}
		row.Market.Kind = types.MarketKind(kind)
		row.Market.Venue = types.Venue(venue)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CreatePosition inserts a new open position, returning its id.
func (r *Repo) CreatePosition(ctx context.Context, marketID uuid.UUID, yesShares, noShares, totalInvested decimal.Decimal, isDryRun bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO positions (market_id, yes_shares, no_shares, total_invested, is_dry_run, status)
		VALUES ($1, $2, $3, $4, $5, 'open')
		RETURNING id
	`, marketID, yesShares, noShares, totalInvested, isDryRun).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create position: %w", err)
	}
	return id, nil
}

// RecordTrade inserts a trade row with full order-tracking metadata.
func (r *Repo) RecordTrade(ctx context.Context, t types.Trade) (uuid.UUID, error) {
	var orderID sql.NullString
	if t.OrderID != "" {
		orderID = sql.NullString{String: t.OrderID, Valid: true}
	}
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO trades (position_id, side, action, price, shares, order_id, filled_shares, order_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, t.PositionID, string(t.Side), t.Action, t.Price, t.Shares, orderID, t.FilledShares, string(t.OrderStatus)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("record trade: %w", err)
	}
	return id, nil
}

// UpdatePositionFills records actual filled amounts for a position.
func (r *Repo) UpdatePositionFills(ctx context.Context, positionID uuid.UUID, yesFilled, noFilled decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE positions SET yes_filled = $2, no_filled = $3 WHERE id = $1
	`, positionID, yesFilled, noFilled)
	if err != nil {
		return fmt.Errorf("update position fills: %w", err)
	}
	return nil
}

// GetOpenPositions returns all positions with status = 'open'.
func (r *Repo) GetOpenPositions(ctx context.Context) ([]types.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, market_id, yes_shares, no_shares, yes_filled, no_filled, total_invested,
			COALESCE(status, 'open'), COALESCE(is_dry_run, true), COALESCE(opened_at, NOW()), closed_at
		FROM positions
		WHERE status = 'open'
		ORDER BY opened_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("get open positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		var p types.Position
		var closedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.MarketID, &p.YesShares, &p.NoShares, &p.YesFilled, &p.NoFilled, &p.TotalInvested,
			&p.Status, &p.IsDryRun, &p.OpenedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan open position: %w", err)
		}
		if closedAt.Valid {
			p.ClosedAt = &closedAt.Time
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ClosePosition marks a position closed.
func (r *Repo) ClosePosition(ctx context.Context, positionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE positions SET status = 'closed', closed_at = NOW() WHERE id = $1
	`, positionID)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	return nil
}

// GetResolution looks up a cached settlement outcome for marketID, backing
// the C11 settlement resolver's cache-first lookup.
func (r *Repo) GetResolution(ctx context.Context, marketID uuid.UUID) (types.Resolution, bool, error) {
	var res types.Resolution
	var side string
	err := r.db.QueryRowContext(ctx, `
		SELECT market_id, winning_side, end_time, resolved_at
		FROM market_resolutions WHERE market_id = $1
	`, marketID).Scan(&res.MarketID, &side, &res.EndTime, &res.ResolvedAt)
	if err == sql.ErrNoRows {
		return types.Resolution{}, false, nil
	}
	if err != nil {
		return types.Resolution{}, false, fmt.Errorf("get resolution: %w", err)
	}
	res.WinningSide = types.Side(side)
	return res, true, nil
}

// PutResolution caches a settlement outcome, overwriting any prior entry
// for the same market.
func (r *Repo) PutResolution(ctx context.Context, res types.Resolution) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_resolutions (market_id, winning_side, end_time, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id) DO UPDATE
		SET winning_side = EXCLUDED.winning_side, resolved_at = EXCLUDED.resolved_at
	`, res.MarketID, string(res.WinningSide), res.EndTime, res.ResolvedAt)
	if err != nil {
		return fmt.Errorf("put resolution: %w", err)
	}
	return nil
}
