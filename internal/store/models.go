package store

import (
	"time"

	"cprbot/internal/strategy"
)

// DailyLevel is the precomputed pivot set for one trading day, written by the
// nightly level calculator and read-only here.
type DailyLevel struct {
	ID     uint    `gorm:"column:id;primaryKey"`
	ForDay string  `gorm:"column:forDay"`
	BC     float64 `gorm:"column:bc"`
	TC     float64 `gorm:"column:tc"`
	R1     float64 `gorm:"column:r1"`
	R2     float64 `gorm:"column:r2"`
	R3     float64 `gorm:"column:r3"`
	R4     float64 `gorm:"column:r4"`
	S1     float64 `gorm:"column:s1"`
	S2     float64 `gorm:"column:s2"`
	S3     float64 `gorm:"column:s3"`
	S4     float64 `gorm:"column:s4"`
	Buffer float64 `gorm:"column:buffer"`
}

func (DailyLevel) TableName() string { return "DailyLevels" }

func (d DailyLevel) Levels() strategy.Levels {
	return strategy.Levels{
		BC: d.BC, TC: d.TC,
		R1: d.R1, R2: d.R2, R3: d.R3, R4: d.R4,
		S1: d.S1, S2: d.S2, S3: d.S3, S4: d.S4,
		Buffer: d.Buffer,
	}
}

// TradeRecord journals every executed order for post-hoc review.
type TradeRecord struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	PlacedAt  time.Time `gorm:"column:placedAt"`
	Action    string    `gorm:"column:action;size:8"`
	Direction string    `gorm:"column:direction;size:4"`
	Symbol    string    `gorm:"column:symbol;size:64"`
	Price     float64   `gorm:"column:price"`
	Reason    string    `gorm:"column:reason;size:255"`
}

func (TradeRecord) TableName() string { return "TradeLogs" }
