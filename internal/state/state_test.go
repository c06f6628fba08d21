package state

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"cprbot/internal/strategy"
)

func TestStoreTransitions(t *testing.T) {
	store := NewStore()
	if store.Position().Open() {
		t.Fatalf("expected new store to be flat")
	}

	store.SetOpen(strategy.CE, "NSE_FO|53001")
	pos := store.Position()
	if !pos.Open() || pos.Direction != strategy.CE || pos.Symbol != "NSE_FO|53001" {
		t.Fatalf("unexpected position after open: %+v", pos)
	}

	store.Clear()
	if store.Position().Open() {
		t.Fatalf("expected store to be flat after clear")
	}
}

func TestStoreCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	store := NewStore()
	store.SetOpen(strategy.PE, "NSE_FO|53002")
	if err := store.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewStore()
	if err := restored.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	pos := restored.Position()
	if pos.Direction != strategy.PE || pos.Symbol != "NSE_FO|53002" {
		t.Fatalf("unexpected restored position: %+v", pos)
	}
}

// A missing checkpoint is the normal first run and must be tellable apart
// from a corrupt one, which startup treats as fatal.
func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore()
	err := store.Load(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist for missing checkpoint, got %v", err)
	}
	if store.Position().Open() {
		t.Fatalf("load failure must not mutate state")
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte(`{"direction":"CE","sym`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewStore()
	err := store.Load(path)
	if err == nil {
		t.Fatalf("expected error for corrupt checkpoint")
	}
	if errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("corrupt checkpoint must not read as missing: %v", err)
	}
	if store.Position().Open() {
		t.Fatalf("load failure must not mutate state")
	}
}
