package instruments

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cprbot/internal/strategy"
)

// ErrInstrumentNotFound means no contract in the catalog matches the
// (asset, strike, option type) triple with a future expiry.
var ErrInstrumentNotFound = errors.New("instrument not found")

// Resolve returns the contract with the nearest future expiry matching the
// asset symbol, strike, and option side. Catalog strikes are JSON floats, so
// the comparison goes through decimal rather than float equality.
func (c *Catalog) Resolve(asset string, strike int, direction strategy.Direction, now time.Time) (Instrument, error) {
	target := decimal.NewFromInt(int64(strike))
	cutoff := now.UnixMilli()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Instrument
	for i := range c.instruments {
		in := &c.instruments[i]
		if !strings.EqualFold(in.AssetSymbol, asset) {
			continue
		}
		if !strings.EqualFold(in.InstrumentType, string(direction)) {
			continue
		}
		if !decimal.NewFromFloat(in.StrikePrice).Equal(target) {
			continue
		}
		if in.Expiry < cutoff {
			continue
		}
		if best == nil || in.Expiry < best.Expiry {
			best = in
		}
	}
	if best == nil {
		return Instrument{}, ErrInstrumentNotFound
	}
	return *best, nil
}
