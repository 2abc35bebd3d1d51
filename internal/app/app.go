// Package app wires every component into one running process: market
// discovery, the trade executor's cycle, the risk manager, the exit
// manager, and the dashboard heartbeat server. It replaces the teacher's
// internal/engine, which orchestrated a per-market maker goroutine pool;
// this system instead runs one shared polling cycle across every fresh
// market; there are no per-market slots to start or stop.
//
// Lifecycle: New() -> Start() -> [runs until ctx is cancelled] -> Stop()
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictarb/internal/api"
	"predictarb/internal/config"
	"predictarb/internal/discovery"
	"predictarb/internal/executor"
	"predictarb/internal/exit"
	"predictarb/internal/orders"
	"predictarb/internal/repo"
	"predictarb/internal/risk"
	"predictarb/internal/session"
	"predictarb/internal/venue/polymarket"
	"predictarb/pkg/types"
)

// cycleInterval is how often the executor's fresh-orderbook-query-to-
// settlement cycle runs.
const cycleInterval = 2 * time.Second

// exitCheckInterval is how often the exit manager re-checks trailing-stop
// and take-profit triggers against fresh quotes.
const exitCheckInterval = 5 * time.Second

// riskReportInterval is how often open positions are reported to the risk
// manager for exposure and daily-loss accounting.
const riskReportInterval = 5 * time.Second

// exitQuoteMaxAge bounds how stale an orderbook snapshot can be before the
// exit monitor stops trusting it for a trigger check.
const exitQuoteMaxAge = 5 * time.Second

// App owns every long-running collaborator and their shared lifecycle.
type App struct {
	cfg config.Config

	repo      *repo.Repo
	client    *polymarket.Client
	disco     *discovery.Client
	orderMgr  *orders.Manager
	authCache *executor.AuthCache
	sdkCache  *executor.SDKCache
	settler   *executor.Settler
	exec      *executor.Executor
	exitMgr   *exit.Manager
	riskMgr   *risk.Manager
	sess      *session.State
	persister *session.Persister
	apiServer *api.Server

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every collaborator from cfg. In live mode, if the Polymarket
// client has no L2 API credentials configured, it derives them via L1
// (EIP-712) auth before returning, matching the teacher's New()'s
// eager-derive behavior; in dry-run mode it skips that step.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	r, err := repo.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	client, err := polymarket.NewClient(polymarket.Config{
		CLOBBaseURL: cfg.Polymarket.CLOBBaseURL,
		DryRun:      cfg.DryRun,
		Auth: polymarket.AuthConfig{
			PrivateKeyHex: cfg.Polymarket.PrivateKeyHex,
			FunderAddress: cfg.Polymarket.FunderAddress,
			ChainID:       cfg.Polymarket.ChainID,
			SignatureType: polymarket.SignatureType(cfg.Polymarket.SignatureType),
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build polymarket client: %w", err)
	}

	if !cfg.DryRun {
		if err := client.Authenticate(context.Background()); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}

	disco := discovery.NewClient(types.Polymarket, discoveryConfigFrom(cfg.Discovery, cfg.Polymarket.GammaBaseURL), logger)
	orderMgr := orders.NewManager(client, orders.CancelTimeoutSecs, logger)
	authCache := executor.NewAuthCache(client, logger)
	sdkCache := executor.NewSDKCache(client, logger)
	settler := executor.NewSettler(r, client, cfg.DryRun, logger)

	sess := session.New(cfg.DryRun, decimal.NewFromFloat(cfg.Session.StartingBalance))

	persister, err := session.OpenPersister(cfg.Session.PersistDir)
	if err != nil {
		return nil, fmt.Errorf("open session persister: %w", err)
	}
	restored, err := persister.LoadAll()
	if err != nil {
		logger.Warn("failed to restore persisted positions", "error", err)
	}
	for _, pos := range restored {
		sess.OpenPosition(pos)
	}

	execCfg := executor.DefaultConfig()
	execCfg.Sizing = executor.SizingConfig{
		BasePosition:       decimal.NewFromFloat(cfg.Sizing.BasePosition),
		MaxPosition:        decimal.NewFromFloat(cfg.Sizing.MaxPosition),
		LiquidityThreshold: decimal.NewFromFloat(cfg.Sizing.LiquidityThreshold),
		MaxTotalExposure:   decimal.NewFromFloat(cfg.Sizing.MaxTotalExposure),
	}
	execCfg.DryRun = cfg.DryRun
	exec := executor.NewExecutor(execCfg, r, orderMgr, client, authCache, sdkCache, settler, sess, logger)

	exitMgr := exit.NewManager(
		decimal.NewFromFloat(cfg.Exit.TrailingStopPct),
		cfg.Exit.HasTakeProfit,
		decimal.NewFromFloat(cfg.Exit.TakeProfitPct),
		cfg.DryRun,
		client,
		logger,
	)

	riskMgr := risk.NewManager(risk.Config{
		MaxPositionPerMarket: decimal.NewFromFloat(cfg.Risk.MaxPositionPerMarket),
		MaxGlobalExposure:    decimal.NewFromFloat(cfg.Risk.MaxGlobalExposure),
		MaxMarketsActive:     cfg.Risk.MaxMarketsActive,
		KillSwitchDropPct:    decimal.NewFromFloat(cfg.Risk.KillSwitchDropPct),
		KillSwitchWindowSec:  cfg.Risk.KillSwitchWindowSec,
		MaxDailyLoss:         decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		CooldownAfterKill:    cfg.Risk.CooldownAfterKill,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:       cfg,
		repo:      r,
		client:    client,
		disco:     disco,
		orderMgr:  orderMgr,
		authCache: authCache,
		sdkCache:  sdkCache,
		settler:   settler,
		exec:      exec,
		exitMgr:   exitMgr,
		riskMgr:   riskMgr,
		sess:      sess,
		persister: persister,
		logger:    logger.With("component", "app"),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.Dashboard.Enabled {
		a.apiServer = api.NewServer(fmt.Sprintf(":%d", cfg.Dashboard.Port), a, logger)
	}

	return a, nil
}

func discoveryConfigFrom(cfg config.DiscoveryConfig, gammaBaseURL string) discovery.Config {
	return discovery.Config{
		GammaBaseURL:    gammaBaseURL,
		PollInterval:    cfg.PollInterval,
		MinLiquidity:    cfg.MinLiquidity,
		MinVolume24h:    cfg.MinVolume24h,
		MinSpread:       cfg.MinSpread,
		MaxEndDateDays:  cfg.MaxEndDateDays,
		ExcludeSlugs:    cfg.ExcludeSlugs,
		IncludeSlugs:    cfg.IncludeSlugs,
		IncludeKeywords: cfg.IncludeKeywords,
		ExcludeKeywords: cfg.ExcludeKeywords,
	}
}

// Start launches every background goroutine: the discovery poller, its
// repository ingestion loop, the risk manager, the exit monitor, the
// executor's trading cycle, and the dashboard server.
func (a *App) Start() error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.disco.Run(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.ingestDiscoveryResults()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.riskMgr.Run(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchKillSignals()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reportRiskExposure()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runExitMonitor()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runTradeCycle()
	}()

	if a.apiServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.apiServer.Start(); err != nil {
				a.logger.Error("dashboard server error", "error", err)
			}
		}()
	}

	a.logger.Info("app started", "dry_run", a.cfg.DryRun)
	return nil
}

// Stop cancels every goroutine's context, cancels all resting orders on
// the venue as a safety net, persists open positions for crash recovery,
// and waits for clean shutdown.
func (a *App) Stop() {
	a.logger.Info("shutting down...")

	a.cancel()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := a.client.CancelAll(cancelCtx); err != nil {
		a.logger.Error("failed to cancel all orders on shutdown", "error", err)
	}
	cancelCancel()
	a.orderMgr.Wait()

	for _, pos := range a.sess.OpenPositions() {
		if err := a.persister.SavePosition(pos); err != nil {
			a.logger.Error("failed to persist position", "market", pos.MarketID, "error", err)
		}
	}

	if a.apiServer != nil {
		if err := a.apiServer.Stop(); err != nil {
			a.logger.Error("failed to stop dashboard server", "error", err)
		}
	}

	a.wg.Wait()

	if err := a.repo.Close(); err != nil {
		a.logger.Error("failed to close repo", "error", err)
	}

	a.logger.Info("shutdown complete")
}

// ingestDiscoveryResults persists each discovery pass: markets are
// upserted first so orderbook snapshots can reference their assigned
// IDs, then stale markets are swept.
func (a *App) ingestDiscoveryResults() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case result, ok := <-a.disco.Results():
			if !ok {
				return
			}
			a.ingestResult(result)
		}
	}
}

func (a *App) ingestResult(result discovery.Result) {
	ctx := a.ctx
	for _, m := range result.Markets {
		marketID, err := a.repo.UpsertMarket(ctx, m)
		if err != nil {
			a.logger.Error("failed to upsert market", "condition_id", m.ConditionID, "error", err)
			continue
		}
		snap, ok := result.Snapshots[m.ConditionID]
		if !ok {
			continue
		}
		snap.MarketID = marketID
		if err := a.repo.InsertOrderbookSnapshot(ctx, snap); err != nil {
			a.logger.Error("failed to insert orderbook snapshot", "market", marketID, "error", err)
		}
	}

	if n, err := a.repo.DeactivateExpiredMarkets(ctx); err != nil {
		a.logger.Error("failed to deactivate expired markets", "error", err)
	} else if n > 0 {
		a.logger.Info("deactivated expired markets", "count", n)
	}
}

// runTradeCycle drives the executor's RunCycle on a fixed tick, skipping
// cycles while the risk manager's kill switch is active.
func (a *App) runTradeCycle() {
	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if a.riskMgr.IsKillSwitchActive() {
				continue
			}
			result := a.exec.RunCycle(a.ctx)
			if result.Executed {
				a.logger.Info("trade executed", "market", result.MarketID, "invested", result.Invested)
			}
		}
	}
}

// watchKillSignals drains the risk manager's kill channel. A global kill
// (uuid.Nil) cancels every resting order as a safety net; a per-market
// kill is logged since open positions are already two-legged and held to
// settlement rather than pulled mid-quote.
func (a *App) watchKillSignals() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case kill := <-a.riskMgr.KillCh():
			a.logger.Error("kill signal received", "market", kill.MarketID, "reason", kill.Reason)
			if kill.MarketID == uuid.Nil {
				cancelCtx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
				if _, err := a.client.CancelAll(cancelCtx); err != nil {
					a.logger.Error("failed to cancel all orders after kill", "error", err)
				}
				cancel()
			}
		}
	}
}

// reportRiskExposure feeds each open position's invested cost to the risk
// manager, the input its exposure caps and daily-loss cap evaluate.
func (a *App) reportRiskExposure() {
	ticker := time.NewTicker(riskReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snap := a.sess.Snapshot()
			for _, pos := range a.sess.OpenPositions() {
				a.riskMgr.Report(risk.PositionReport{
					MarketID:      pos.MarketID,
					ExposureUSD:   pos.TotalInvested,
					RefPrice:      decimal.Zero,
					RealizedPnL:   snap.NetProfit,
					Timestamp:     time.Now(),
				})
			}
		}
	}
}

// runExitMonitor re-checks every open position's trailing-stop/take-profit
// triggers against fresh book prices. A position's two-sided shares are
// watched on whichever leg carries the larger size, since the teacher's
// exit model tracks one side per position and arbitrage positions settle
// to a single dominant leg once the rebalance sell clears any imbalance.
func (a *App) runExitMonitor() {
	ticker := time.NewTicker(exitCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.checkExits()
		}
	}
}

func (a *App) checkExits() {
	open := a.sess.OpenPositions()
	if len(open) == 0 {
		return
	}

	quotes := make(map[uuid.UUID]exit.MarketQuote, len(open))
	markets, err := a.repo.GetMarketsWithFreshOrderbooks(a.ctx, exitQuoteMaxAge, executor.CryptoAssets, 24*time.Hour)
	if err != nil {
		a.logger.Error("failed to fetch fresh orderbooks for exit check", "error", err)
		return
	}
	byMarket := make(map[uuid.UUID]repo.MarketWithPrices, len(markets))
	for _, m := range markets {
		byMarket[m.Market.ID] = m
	}

	for _, pos := range open {
		mw, ok := byMarket[pos.MarketID]
		if !ok {
			continue
		}

		if !a.exitMgr.HasPosition(pos.MarketID) {
			side := dominantSide(pos)
			if side == "" {
				continue
			}
			tokenID := mw.Market.YesTokenID
			if side == "NO" {
				tokenID = mw.Market.NoTokenID
			}
			a.exitMgr.AddPosition(pos.MarketID, pos.MarketID.String(), tokenID, side, dominantShares(pos), decimal.Zero)
		}

		quotes[pos.MarketID] = exit.MarketQuote{
			MarketID:   pos.MarketID,
			YesBestBid: mw.YesBestBid,
			NoBestBid:  mw.NoBestBid,
		}
	}

	for _, result := range a.exitMgr.CheckExits(a.ctx, quotes) {
		if !result.Success {
			a.logger.Warn("exit attempt failed", "market", result.MarketID, "reason", result.Reason, "error", result.Err)
			continue
		}
		payout := result.ExitPrice.Mul(result.Shares)
		a.sess.ClosePosition(result.MarketID, payout, result.PnL)
		if err := a.persister.RemovePosition(result.MarketID); err != nil {
			a.logger.Warn("failed to remove persisted position", "market", result.MarketID, "error", err)
		}
		a.riskMgr.RemoveMarket(result.MarketID)
		a.logger.Info("position exited", "market", result.MarketID, "reason", result.Reason, "pnl", result.PnL)
	}
}

func dominantSide(pos session.PositionCache) string {
	switch {
	case pos.YesShares.GreaterThan(pos.NoShares):
		return "YES"
	case pos.NoShares.GreaterThan(pos.YesShares):
		return "NO"
	default:
		return ""
	}
}

func dominantShares(pos session.PositionCache) decimal.Decimal {
	if pos.YesShares.GreaterThan(pos.NoShares) {
		return pos.YesShares
	}
	return pos.NoShares
}

// SessionSnapshot satisfies api.SnapshotProvider.
func (a *App) SessionSnapshot() session.Snapshot {
	return a.sess.Snapshot()
}

// RiskSnapshot satisfies api.SnapshotProvider.
func (a *App) RiskSnapshot() risk.Snapshot {
	return a.riskMgr.GetRiskSnapshot()
}
