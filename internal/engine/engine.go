// Package engine drives one evaluation per second: window gating, session
// refresh, candle fetch, signal evaluation, risk gating, and the position
// state machine, strictly in that order within a single tick.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cprbot/internal/config"
	"cprbot/internal/hours"
	"cprbot/internal/md"
	"cprbot/internal/metrics"
	"cprbot/internal/risk"
	"cprbot/internal/session"
	"cprbot/internal/state"
	"cprbot/internal/store"
	"cprbot/internal/strategy"
)

type Engine struct {
	cfg       config.Config
	session   *session.Context
	candles   *md.Client
	strat     strategy.Strategy
	gate      risk.Gate
	trader    *Trader
	positions *state.Store
	decisions *DecisionLogger
	log       zerolog.Logger

	loc *time.Location
	now func() time.Time

	// busy is the reentrancy guard: a tick that arrives while the previous
	// evaluation is still blocked on I/O is dropped, never queued, so the
	// position state has exactly one mutating evaluation at a time.
	busy atomic.Bool

	ordersDay   string
	ordersToday int
}

func New(cfg config.Config, sess *session.Context, candles *md.Client, strat strategy.Strategy, gate risk.Gate, trader *Trader, positions *state.Store, decisions *DecisionLogger, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		session:   sess,
		candles:   candles,
		strat:     strat,
		gate:      gate,
		trader:    trader,
		positions: positions,
		decisions: decisions,
		log:       log.With().Str("component", "engine").Logger(),
		loc:       hours.Location(),
		now:       time.Now,
	}
}

// Run fires one evaluation per second until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if !e.busy.CompareAndSwap(false, true) {
		metrics.TicksDropped.Inc()
		e.log.Debug().Msg("tick dropped, previous evaluation still running")
		return
	}
	defer e.busy.Store(false)

	now := e.now().In(e.loc)
	prep, live := hours.InPrepWindow(now), hours.InLiveWindow(now)
	if !prep && !live {
		return
	}
	metrics.TicksTotal.Inc()

	tctx, cancel := context.WithTimeout(ctx, e.cfg.TickTimeout)
	defer cancel()

	if prep {
		if !e.refreshSession(tctx, now) {
			return
		}
	}

	if !live || !hours.AtCandleBoundary(now) {
		return
	}

	e.evaluate(tctx, now)
}

// refreshSession lazily loads the day's levels, asset, and credentials.
// Any failure skips the rest of the tick; the next tick retries.
func (e *Engine) refreshSession(ctx context.Context, now time.Time) bool {
	if _, err := e.session.EnsureLevels(ctx, hours.TradingDate(now)); err != nil {
		metrics.TicksSkipped.WithLabelValues("levels_unavailable").Inc()
		e.log.Error().Err(err).Msg("daily levels unavailable")
		return false
	}

	if _, err := e.session.EnsureAsset(ctx, now.Weekday().String()); err != nil {
		if errors.Is(err, store.ErrNoAssetForDay) {
			metrics.TicksSkipped.WithLabelValues("no_asset").Inc()
			e.log.Warn().Str("weekday", now.Weekday().String()).Msg("no asset assigned for today")
		} else {
			metrics.TicksSkipped.WithLabelValues("asset_unavailable").Inc()
			e.log.Error().Err(err).Msg("daily asset unavailable")
		}
		return false
	}

	if err := e.session.EnsureKeys(ctx, hours.CredentialRefreshDue(now)); err != nil {
		metrics.TicksSkipped.WithLabelValues("keys_unavailable").Inc()
		e.log.Error().Err(err).Msg("broker keys unavailable")
		return false
	}

	return true
}

func (e *Engine) evaluate(ctx context.Context, now time.Time) {
	asset, ok := e.session.Asset()
	if !ok {
		metrics.TicksSkipped.WithLabelValues("session_not_ready").Inc()
		return
	}
	levels, ok := e.session.Levels()
	if !ok {
		metrics.TicksSkipped.WithLabelValues("session_not_ready").Inc()
		return
	}
	keys, ok := e.session.DataKeys()
	if !ok {
		metrics.TicksSkipped.WithLabelValues("session_not_ready").Inc()
		return
	}

	bar, err := e.candles.Latest(ctx, asset.InstrumentToken, keys.APIKey, keys.AccessToken, now)
	if err != nil {
		switch {
		case errors.Is(err, md.ErrNoCandleData):
			metrics.TicksSkipped.WithLabelValues("no_candle_data").Inc()
			e.log.Warn().Msg("no candle data available")
		case errors.Is(err, md.ErrInvalidPrice):
			metrics.TicksSkipped.WithLabelValues("invalid_price").Inc()
			e.log.Warn().Msg("candle with invalid price")
		default:
			metrics.TicksSkipped.WithLabelValues("fetch_error").Inc()
			e.log.Error().Err(err).Msg("candle fetch failed")
		}
		return
	}

	pos := e.positions.Position()
	sig := e.strat.Evaluate(strategy.Snapshot{
		Price:         bar.Close,
		Levels:        levels,
		LastDirection: pos.Direction,
		PriorBar:      strategy.Bar{Open: bar.Open, Close: bar.Close},
	})
	metrics.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()

	decision := Decision{
		Timestamp: e.now().UTC(),
		TickTime:  now,
		Asset:     asset.Name,
		Price:     bar.Close,
		Strike:    sig.Strike,
		Levels:    levels,
		Action:    sig.Action,
		Direction: sig.Direction,
		Reason:    sig.Reason,
	}

	if sig.Action == strategy.NoAction {
		decision.Result = "hold"
		e.decisions.Append(decision)
		return
	}

	e.rollOrderDay(now)
	if err := e.gate.Evaluate(sig, risk.Context{
		KillSwitch:      e.cfg.KillSwitch,
		OrdersToday:     e.ordersToday,
		MaxOrdersPerDay: e.cfg.MaxOrdersPerDay,
	}); err != nil {
		decision.Result = "rejected"
		decision.Error = err.Error()
		e.decisions.Append(decision)
		e.log.Warn().Err(err).Str("action", string(sig.Action)).Msg("risk gate rejected signal")
		return
	}

	outcome, err := e.trader.Apply(ctx, asset.Name, sig, bar.Close, now)
	e.ordersToday += outcome.Entries
	decision.Result = outcome.Result
	decision.Symbol = outcome.Symbol
	if err != nil {
		decision.Error = err.Error()
		e.log.Error().Err(err).
			Str("action", string(sig.Action)).Str("direction", string(sig.Direction)).
			Float64("price", bar.Close).Float64("bc", levels.BC).Float64("tc", levels.TC).
			Msg("trade transition failed")
	}
	e.decisions.Append(decision)

	if outcome.Orders > 0 {
		if err := e.positions.Save(e.cfg.CheckpointPath); err != nil {
			e.log.Error().Err(err).Msg("position checkpoint write failed")
		}
	}
}

// rollOrderDay resets the per-day entry counter when the trading date turns.
func (e *Engine) rollOrderDay(now time.Time) {
	day := hours.TradingDate(now)
	if day != e.ordersDay {
		e.ordersDay = day
		e.ordersToday = 0
	}
}
