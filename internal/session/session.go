// Package session owns the lazily loaded per-trading-day context: pivot
// levels, the day's asset, and broker credentials. The evaluation loop is the
// single writer; values are cached until their key (date or weekday) rolls
// over, so each backing query runs at most once per day.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"cprbot/internal/store"
	"cprbot/internal/strategy"
)

// ContextStore is the read side of the trading-day context store.
type ContextStore interface {
	LevelsFor(ctx context.Context, day string) (strategy.Levels, error)
	AssetFor(ctx context.Context, weekday string) (store.Asset, error)
	DataKeys(ctx context.Context) (store.Credentials, error)
	OrderKeys(ctx context.Context) (store.Credentials, error)
}

type Context struct {
	store ContextStore
	log   zerolog.Logger

	levels    *strategy.Levels
	levelsDay string

	asset    *store.Asset
	assetDay string

	dataKeys  *store.Credentials
	orderKeys *store.Credentials
}

func New(cs ContextStore, log zerolog.Logger) *Context {
	return &Context{
		store: cs,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// EnsureLevels loads the pivot levels for day unless already cached for that
// day. A load failure is returned without caching, so the next tick retries.
func (c *Context) EnsureLevels(ctx context.Context, day string) (strategy.Levels, error) {
	if c.levels != nil && c.levelsDay == day {
		return *c.levels, nil
	}
	levels, err := c.store.LevelsFor(ctx, day)
	if err != nil {
		return strategy.Levels{}, err
	}
	c.levels = &levels
	c.levelsDay = day
	c.log.Info().Str("day", day).
		Float64("bc", levels.BC).Float64("tc", levels.TC).Float64("buffer", levels.Buffer).
		Msg("daily levels loaded")
	return levels, nil
}

// EnsureAsset loads the weekday's asset assignment unless already cached.
// store.ErrNoAssetForDay propagates uncached: a missing assignment is
// re-checked every tick in case it is configured mid-morning.
func (c *Context) EnsureAsset(ctx context.Context, weekday string) (store.Asset, error) {
	if c.asset != nil && c.assetDay == weekday {
		return *c.asset, nil
	}
	asset, err := c.store.AssetFor(ctx, weekday)
	if err != nil {
		return store.Asset{}, err
	}
	c.asset = &asset
	c.assetDay = weekday
	c.log.Info().Str("weekday", weekday).Str("asset", asset.Name).
		Int64("token", asset.InstrumentToken).Msg("daily asset selected")
	return asset, nil
}

// EnsureKeys loads both credential pairs when absent, or unconditionally when
// force is set (the 40s refresh cadence). On a failed refresh the previous
// keys are kept; stale credentials beat none.
func (c *Context) EnsureKeys(ctx context.Context, force bool) error {
	if !force && c.dataKeys != nil && c.orderKeys != nil {
		return nil
	}
	dataKeys, err := c.store.DataKeys(ctx)
	if err != nil {
		return err
	}
	orderKeys, err := c.store.OrderKeys(ctx)
	if err != nil {
		return err
	}
	c.dataKeys = &dataKeys
	c.orderKeys = &orderKeys
	return nil
}

func (c *Context) Levels() (strategy.Levels, bool) {
	if c.levels == nil {
		return strategy.Levels{}, false
	}
	return *c.levels, true
}

func (c *Context) Asset() (store.Asset, bool) {
	if c.asset == nil {
		return store.Asset{}, false
	}
	return *c.asset, true
}

func (c *Context) DataKeys() (store.Credentials, bool) {
	if c.dataKeys == nil {
		return store.Credentials{}, false
	}
	return *c.dataKeys, true
}

func (c *Context) OrderKeys() (store.Credentials, bool) {
	if c.orderKeys == nil {
		return store.Credentials{}, false
	}
	return *c.orderKeys, true
}
