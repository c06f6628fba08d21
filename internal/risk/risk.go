package risk

import (
	"fmt"

	"cprbot/internal/strategy"
)

// Context carries the counters and switches the gate evaluates an entry
// against. OrdersToday counts position-opening orders only; exits are
// uncapped.
type Context struct {
	KillSwitch      bool
	OrdersToday     int
	MaxOrdersPerDay int
}

// Gate approves or rejects entry signals. Exits are always approved: the
// gate must never trap the book in an open position it wants closed.
type Gate struct{}

func (g Gate) Evaluate(sig strategy.Signal, ctx Context) error {
	switch sig.Action {
	case strategy.NoAction, strategy.Exit:
		return nil
	}

	if ctx.KillSwitch {
		return fmt.Errorf("kill_switch_enabled")
	}
	if ctx.MaxOrdersPerDay > 0 && ctx.OrdersToday >= ctx.MaxOrdersPerDay {
		return fmt.Errorf("daily_order_limit: %d entries placed", ctx.OrdersToday)
	}
	return nil
}
