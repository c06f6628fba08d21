package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"cprbot/internal/strategy"
)

// Decision is one evaluated tick, with enough context to reconstruct why the
// bot did what it did.
type Decision struct {
	RunID     string             `json:"run_id"`
	Timestamp time.Time          `json:"timestamp"`
	TickTime  time.Time          `json:"tick_time"`
	Asset     string             `json:"asset"`
	Price     float64            `json:"price"`
	Strike    int                `json:"strike"`
	Levels    strategy.Levels    `json:"levels"`
	Action    strategy.Action    `json:"action"`
	Direction strategy.Direction `json:"direction,omitempty"`
	Reason    string             `json:"reason"`
	Result    string             `json:"result"`
	Symbol    string             `json:"symbol,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
