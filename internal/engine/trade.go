package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cprbot/internal/broker"
	"cprbot/internal/instruments"
	"cprbot/internal/metrics"
	"cprbot/internal/state"
	"cprbot/internal/store"
	"cprbot/internal/strategy"
)

// Resolver maps (asset, strike, option side) to a tradable contract.
type Resolver interface {
	Resolve(asset string, strike int, direction strategy.Direction, now time.Time) (instruments.Instrument, error)
}

// Journal persists executed trades for review. Best effort: a journal
// failure never blocks trading.
type Journal interface {
	RecordTrade(ctx context.Context, rec store.TradeRecord) error
}

// Outcome describes what a signal did to the book, for the decision log.
// Orders counts every order placed; Entries counts only position-opening
// orders, which is what the daily cap limits.
type Outcome struct {
	Result  string
	Symbol  string
	Orders  int
	Entries int
}

// Trader converts signals into order actions while holding the invariant of
// at most one open position. Transitions are strictly sequential: only the
// evaluation loop calls Apply.
type Trader struct {
	gateway   broker.Gateway
	resolver  Resolver
	positions *state.Store
	journal   Journal
	log       zerolog.Logger
}

func NewTrader(gateway broker.Gateway, resolver Resolver, positions *state.Store, journal Journal, log zerolog.Logger) *Trader {
	return &Trader{
		gateway:   gateway,
		resolver:  resolver,
		positions: positions,
		journal:   journal,
		log:       log.With().Str("component", "trader").Logger(),
	}
}

func (t *Trader) Apply(ctx context.Context, asset string, sig strategy.Signal, price float64, now time.Time) (Outcome, error) {
	pos := t.positions.Position()

	switch sig.Action {
	case strategy.NoAction:
		return Outcome{Result: "hold"}, nil

	case strategy.Exit:
		if !pos.Open() {
			t.log.Warn().Str("reason", sig.Reason).Msg("exit signal with no open position")
			return Outcome{Result: "exit_without_position"}, nil
		}
		if err := t.exit(ctx, pos, price, sig.Reason, now); err != nil {
			return Outcome{Result: "exit_failed", Symbol: pos.Symbol}, err
		}
		return Outcome{Result: "exited", Symbol: pos.Symbol, Orders: 1}, nil

	case strategy.Buy, strategy.Sell:
		if pos.Open() && pos.Direction == sig.Direction {
			t.log.Debug().Str("direction", string(pos.Direction)).Msg("duplicate entry suppressed")
			return Outcome{Result: "duplicate"}, nil
		}

		flipped := false
		if pos.Open() {
			// Flip: close first, commit Flat, then open the other side.
			// Never infer the position is still open once the exit call
			// has been issued.
			if err := t.exit(ctx, pos, price, sig.Reason, now); err != nil {
				return Outcome{Result: "exit_failed", Symbol: pos.Symbol}, err
			}
			flipped = true
		}

		inst, err := t.resolver.Resolve(asset, sig.Strike, sig.Direction, now)
		if err != nil {
			t.escalateIfUnhedged(flipped, err)
			return Outcome{Result: "resolve_failed", Orders: boolToInt(flipped)},
				fmt.Errorf("resolve %s %d %s: %w", asset, sig.Strike, sig.Direction, err)
		}

		if err := t.gateway.Enter(ctx, inst.InstrumentKey); err != nil {
			metrics.OrdersTotal.WithLabelValues("enter", "failed").Inc()
			t.escalateIfUnhedged(flipped, err)
			return Outcome{Result: "enter_failed", Symbol: inst.InstrumentKey, Orders: boolToInt(flipped)},
				fmt.Errorf("enter order %s: %w", inst.InstrumentKey, err)
		}
		metrics.OrdersTotal.WithLabelValues("enter", "ok").Inc()

		t.positions.SetOpen(sig.Direction, inst.InstrumentKey)
		t.record(ctx, "ENTER", sig.Direction, inst.InstrumentKey, price, sig.Reason, now)
		t.log.Info().Str("symbol", inst.InstrumentKey).Str("direction", string(sig.Direction)).
			Float64("price", price).Str("reason", sig.Reason).Msg("position opened")

		result := "entered"
		orders := 1
		if flipped {
			result = "flipped"
			orders = 2
		}
		return Outcome{Result: result, Symbol: inst.InstrumentKey, Orders: orders, Entries: 1}, nil
	}

	return Outcome{Result: "hold"}, nil
}

// exit closes the open position. State is cleared only after the gateway
// accepted the order: a failed exit leaves the position open, never
// optimistically flat.
func (t *Trader) exit(ctx context.Context, pos state.Position, price float64, reason string, now time.Time) error {
	if err := t.gateway.Exit(ctx, pos.Symbol); err != nil {
		metrics.OrdersTotal.WithLabelValues("exit", "failed").Inc()
		return fmt.Errorf("exit order %s: %w", pos.Symbol, err)
	}
	metrics.OrdersTotal.WithLabelValues("exit", "ok").Inc()

	t.positions.Clear()
	t.record(ctx, "EXIT", pos.Direction, pos.Symbol, price, reason, now)
	t.log.Info().Str("symbol", pos.Symbol).Str("direction", string(pos.Direction)).
		Float64("price", price).Str("reason", reason).Msg("position closed")
	return nil
}

// escalateIfUnhedged flags the flip partial-failure case: the exit went
// through, the book is flat, and the intended new position is not open.
func (t *Trader) escalateIfUnhedged(flipped bool, cause error) {
	if !flipped {
		return
	}
	metrics.UnhedgedFlips.Inc()
	t.log.Error().Err(cause).Msg("flip entry failed after exit: book is flat without the intended position, manual follow-up required")
}

func (t *Trader) record(ctx context.Context, action string, direction strategy.Direction, symbol string, price float64, reason string, at time.Time) {
	if t.journal == nil {
		return
	}
	rec := store.TradeRecord{
		PlacedAt:  at,
		Action:    action,
		Direction: string(direction),
		Symbol:    symbol,
		Price:     price,
		Reason:    reason,
	}
	if err := t.journal.RecordTrade(ctx, rec); err != nil {
		t.log.Error().Err(err).Str("action", action).Str("symbol", symbol).Msg("trade journal write failed")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
