package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cprbot/internal/instruments"
	"cprbot/internal/state"
	"cprbot/internal/store"
	"cprbot/internal/strategy"
)

type fakeGateway struct {
	calls    []string
	enterErr error
	exitErr  error
}

func (f *fakeGateway) Enter(ctx context.Context, symbol string) error {
	f.calls = append(f.calls, "enter:"+symbol)
	return f.enterErr
}

func (f *fakeGateway) Exit(ctx context.Context, symbol string) error {
	f.calls = append(f.calls, "exit:"+symbol)
	return f.exitErr
}

type fakeResolver struct {
	inst instruments.Instrument
	err  error
}

func (f *fakeResolver) Resolve(asset string, strike int, direction strategy.Direction, now time.Time) (instruments.Instrument, error) {
	return f.inst, f.err
}

type fakeJournal struct {
	records []store.TradeRecord
}

func (f *fakeJournal) RecordTrade(ctx context.Context, rec store.TradeRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func newTestTrader(gateway *fakeGateway, resolver *fakeResolver) (*Trader, *state.Store, *fakeJournal) {
	positions := state.NewStore()
	journal := &fakeJournal{}
	trader := NewTrader(gateway, resolver, positions, journal, zerolog.Nop())
	return trader, positions, journal
}

var testClock = time.Date(2025, 6, 2, 9, 33, 0, 0, time.UTC)

func buySignal() strategy.Signal {
	return strategy.Signal{Action: strategy.Buy, Direction: strategy.CE, Strike: 23300, Reason: "price above TC within buffer"}
}

func sellSignal() strategy.Signal {
	return strategy.Signal{Action: strategy.Sell, Direction: strategy.PE, Strike: 23300, Reason: "price below BC within buffer"}
}

func TestApplyBuyFromFlatOpensPosition(t *testing.T) {
	gateway := &fakeGateway{}
	resolver := &fakeResolver{inst: instruments.Instrument{InstrumentKey: "NSE_FO|CE1"}}
	trader, positions, journal := newTestTrader(gateway, resolver)

	outcome, err := trader.Apply(context.Background(), "NIFTY", buySignal(), 23310, testClock)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.Result != "entered" || outcome.Orders != 1 || outcome.Entries != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	pos := positions.Position()
	if pos.Direction != strategy.CE || pos.Symbol != "NSE_FO|CE1" {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if len(gateway.calls) != 1 || gateway.calls[0] != "enter:NSE_FO|CE1" {
		t.Fatalf("unexpected gateway calls: %v", gateway.calls)
	}
	if len(journal.records) != 1 || journal.records[0].Action != "ENTER" {
		t.Fatalf("unexpected journal: %+v", journal.records)
	}
}

func TestApplyDuplicateDirectionIsSuppressed(t *testing.T) {
	gateway := &fakeGateway{}
	resolver := &fakeResolver{inst: instruments.Instrument{InstrumentKey: "NSE_FO|CE1"}}
	trader, positions, _ := newTestTrader(gateway, resolver)
	positions.SetOpen(strategy.CE, "NSE_FO|CE1")

	outcome, err := trader.Apply(context.Background(), "NIFTY", buySignal(), 23310, testClock)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.Result != "duplicate" || outcome.Orders != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(gateway.calls) != 0 {
		t.Fatalf("expected no gateway calls, got %v", gateway.calls)
	}
	if positions.Position().Symbol != "NSE_FO|CE1" {
		t.Fatalf("position must be unchanged")
	}
}

func TestApplyFlipExitsThenEnters(t *testing.T) {
	gateway := &fakeGateway{}
	resolver := &fakeResolver{inst: instruments.Instrument{InstrumentKey: "NSE_FO|PE1"}}
	trader, positions, _ := newTestTrader(gateway, resolver)
	positions.SetOpen(strategy.CE, "NSE_FO|CE1")

	outcome, err := trader.Apply(context.Background(), "NIFTY", sellSignal(), 23290, testClock)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A flip places two orders but consumes only one entry from the daily cap.
	if outcome.Result != "flipped" || outcome.Orders != 2 || outcome.Entries != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	want := []string{"exit:NSE_FO|CE1", "enter:NSE_FO|PE1"}
	if len(gateway.calls) != 2 || gateway.calls[0] != want[0] || gateway.calls[1] != want[1] {
		t.Fatalf("expected exit before enter, got %v", gateway.calls)
	}
	pos := positions.Position()
	if pos.Direction != strategy.PE || pos.Symbol != "NSE_FO|PE1" {
		t.Fatalf("unexpected position after flip: %+v", pos)
	}
}

func TestApplyFlipEntryFailureLeavesFlat(t *testing.T) {
	gateway := &fakeGateway{enterErr: errors.New("venue rejected")}
	resolver := &fakeResolver{inst: instruments.Instrument{InstrumentKey: "NSE_FO|PE1"}}
	trader, positions, _ := newTestTrader(gateway, resolver)
	positions.SetOpen(strategy.CE, "NSE_FO|CE1")

	outcome, err := trader.Apply(context.Background(), "NIFTY", sellSignal(), 23290, testClock)
	if err == nil {
		t.Fatalf("expected entry failure to surface")
	}
	if outcome.Result != "enter_failed" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if positions.Position().Open() {
		t.Fatalf("expected flat after flip partial failure, got %+v", positions.Position())
	}
}

func TestApplyFlipExitFailureKeepsPosition(t *testing.T) {
	gateway := &fakeGateway{exitErr: errors.New("timeout")}
	resolver := &fakeResolver{inst: instruments.Instrument{InstrumentKey: "NSE_FO|PE1"}}
	trader, positions, _ := newTestTrader(gateway, resolver)
	positions.SetOpen(strategy.CE, "NSE_FO|CE1")

	if _, err := trader.Apply(context.Background(), "NIFTY", sellSignal(), 23290, testClock); err == nil {
		t.Fatalf("expected exit failure to surface")
	}
	pos := positions.Position()
	if !pos.Open() || pos.Direction != strategy.CE {
		t.Fatalf("failed exit must leave the position open, got %+v", pos)
	}
	if len(gateway.calls) != 1 {
		t.Fatalf("no entry may be attempted after a failed exit, got %v", gateway.calls)
	}
}

func TestApplyExitClosesPosition(t *testing.T) {
	gateway := &fakeGateway{}
	trader, positions, journal := newTestTrader(gateway, &fakeResolver{})
	positions.SetOpen(strategy.PE, "NSE_FO|PE1")

	sig := strategy.Signal{Action: strategy.Exit, Direction: strategy.PE, Reason: "price within CPR range"}
	outcome, err := trader.Apply(context.Background(), "NIFTY", sig, 23305, testClock)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Exits never consume the daily entry cap.
	if outcome.Result != "exited" || outcome.Orders != 1 || outcome.Entries != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if positions.Position().Open() {
		t.Fatalf("expected flat after exit")
	}
	if len(journal.records) != 1 || journal.records[0].Action != "EXIT" {
		t.Fatalf("unexpected journal: %+v", journal.records)
	}
}

func TestApplyExitFailureKeepsPositionOpen(t *testing.T) {
	gateway := &fakeGateway{exitErr: errors.New("timeout")}
	trader, positions, _ := newTestTrader(gateway, &fakeResolver{})
	positions.SetOpen(strategy.PE, "NSE_FO|PE1")

	sig := strategy.Signal{Action: strategy.Exit, Direction: strategy.PE, Reason: "price within CPR range"}
	if _, err := trader.Apply(context.Background(), "NIFTY", sig, 23305, testClock); err == nil {
		t.Fatalf("expected error")
	}
	if !positions.Position().Open() {
		t.Fatalf("failed exit must not clear the position")
	}
}

func TestApplyExitWithoutPositionIsNoOp(t *testing.T) {
	gateway := &fakeGateway{}
	trader, positions, _ := newTestTrader(gateway, &fakeResolver{})

	sig := strategy.Signal{Action: strategy.Exit, Direction: strategy.CE, Reason: "price within CPR range"}
	outcome, err := trader.Apply(context.Background(), "NIFTY", sig, 23305, testClock)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.Result != "exit_without_position" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(gateway.calls) != 0 {
		t.Fatalf("expected no gateway calls, got %v", gateway.calls)
	}
	if positions.Position().Open() {
		t.Fatalf("expected flat")
	}
}

func TestApplyResolveFailureFromFlatPlacesNoOrders(t *testing.T) {
	gateway := &fakeGateway{}
	resolver := &fakeResolver{err: instruments.ErrInstrumentNotFound}
	trader, positions, _ := newTestTrader(gateway, resolver)

	outcome, err := trader.Apply(context.Background(), "NIFTY", buySignal(), 23310, testClock)
	if err == nil {
		t.Fatalf("expected resolve failure to surface")
	}
	if outcome.Result != "resolve_failed" || outcome.Orders != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(gateway.calls) != 0 {
		t.Fatalf("expected no gateway calls, got %v", gateway.calls)
	}
	if positions.Position().Open() {
		t.Fatalf("expected flat")
	}
}

func TestApplyNoActionHolds(t *testing.T) {
	gateway := &fakeGateway{}
	trader, _, _ := newTestTrader(gateway, &fakeResolver{})

	sig := strategy.Signal{Action: strategy.NoAction, Reason: "price in neutral zone"}
	outcome, err := trader.Apply(context.Background(), "NIFTY", sig, 23305, testClock)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.Result != "hold" || len(gateway.calls) != 0 {
		t.Fatalf("unexpected outcome: %+v calls=%v", outcome, gateway.calls)
	}
}
