package strategy

type Action string

const (
	NoAction Action = "NO_ACTION"
	Buy      Action = "BUY"
	Sell     Action = "SELL"
	Exit     Action = "EXIT"
)

// Direction is the option-side bias of a position: CE (call side) for long
// breakouts, PE (put side) for short breakouts. Empty means flat.
type Direction string

const (
	CE Direction = "CE"
	PE Direction = "PE"
)

// Levels are the precomputed daily pivot prices. Immutable for the trading
// day once loaded.
type Levels struct {
	BC     float64 `json:"bc"`
	TC     float64 `json:"tc"`
	R1     float64 `json:"r1"`
	R2     float64 `json:"r2"`
	R3     float64 `json:"r3"`
	R4     float64 `json:"r4"`
	S1     float64 `json:"s1"`
	S2     float64 `json:"s2"`
	S3     float64 `json:"s3"`
	S4     float64 `json:"s4"`
	Buffer float64 `json:"buffer"`
}

type namedLevel struct {
	name  string
	value float64
}

// bands is the fixed evaluation order for the breakout scan. Every level is
// visited; a later match overwrites an earlier one.
func (l Levels) bands() []namedLevel {
	return []namedLevel{
		{"r1", l.R1}, {"r2", l.R2}, {"r3", l.R3}, {"r4", l.R4},
		{"s1", l.S1}, {"s2", l.S2}, {"s3", l.S3}, {"s4", l.S4},
	}
}

// crossings is the fixed evaluation order for the crossing-exit scan; the
// first match wins.
func (l Levels) crossings() []namedLevel {
	return append(l.bands(), namedLevel{"tc", l.TC}, namedLevel{"bc", l.BC})
}

// Bar is the open/close pair of the most recent completed 3-minute candle.
type Bar struct {
	Open  float64
	Close float64
}

// Snapshot is everything a single evaluation sees. LastDirection is empty
// when no position is open.
type Snapshot struct {
	Price         float64
	Levels        Levels
	LastDirection Direction
	PriorBar      Bar
}

// Signal is the outcome of one evaluation. Strike is the rounded contract
// strike used for instrument resolution, computed on every evaluation.
type Signal struct {
	Action    Action
	Direction Direction
	Strike    int
	Reason    string
}

type Strategy interface {
	Evaluate(snapshot Snapshot) Signal
}
