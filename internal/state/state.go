// Package state holds the single open-position record. The evaluation loop is
// the only writer; the mutex exists for the checkpoint path and for tests.
package state

import (
	"encoding/json"
	"os"
	"sync"

	"cprbot/internal/strategy"
)

// Position is the open trade, if any. A zero Direction means flat. The
// invariant is at most one open position at any time.
type Position struct {
	Direction strategy.Direction `json:"direction"`
	Symbol    string             `json:"symbol"`
}

func (p Position) Open() bool {
	return p.Direction != ""
}

type Store struct {
	mu       sync.RWMutex
	position Position
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Position() Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

func (s *Store) SetOpen(direction strategy.Direction, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = Position{Direction: direction, Symbol: symbol}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = Position{}
}

// Save checkpoints the position so an open trade survives a restart.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.MarshalIndent(s.position, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var position Position
	if err := json.Unmarshal(data, &position); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	return nil
}
