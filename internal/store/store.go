// Package store reads the trading-day context (daily pivot levels, the
// weekday asset assignment, broker credentials) from MySQL and journals
// executed trades. All reads go through bounded-context queries; the bot
// never mutates the context tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cprbot/internal/strategy"
)

// ErrNoAssetForDay signals that no instrument is assigned to the weekday.
// Non-fatal: the caller logs and retries on the next tick.
var ErrNoAssetForDay = errors.New("no asset assigned for day")

// Asset is the day's selected underlying and its market-data token.
type Asset struct {
	Name            string
	InstrumentToken int64
}

// Credentials authenticate one broker API.
type Credentials struct {
	APIKey      string
	AccessToken string
}

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("context store pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&TradeRecord{}); err != nil {
		return nil, fmt.Errorf("migrate trade journal: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the store is reachable. Called once at startup: the process
// must not begin scheduling against an unreachable store.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// LevelsFor returns the pivot levels precomputed for the given trading date.
func (s *Store) LevelsFor(ctx context.Context, day string) (strategy.Levels, error) {
	var row DailyLevel
	err := s.db.WithContext(ctx).Where("forDay = ?", day).Take(&row).Error
	if err != nil {
		return strategy.Levels{}, fmt.Errorf("daily levels for %s: %w", day, err)
	}
	return row.Levels(), nil
}

// AssetFor returns the underlying assigned to the weekday ("Monday".."Friday").
func (s *Store) AssetFor(ctx context.Context, weekday string) (Asset, error) {
	var row struct {
		Name  string `gorm:"column:name"`
		Token int64  `gorm:"column:token"`
	}
	err := s.db.WithContext(ctx).
		Table("DailyAssets").
		Select("Assets.name AS name, Assets.zerodhaToken AS token").
		Joins("INNER JOIN Assets ON DailyAssets.assetId = Assets.id").
		Where("DailyAssets.day = ?", weekday).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Asset{}, ErrNoAssetForDay
	}
	if err != nil {
		return Asset{}, fmt.Errorf("daily asset for %s: %w", weekday, err)
	}
	return Asset{Name: row.Name, InstrumentToken: row.Token}, nil
}

type keyRow struct {
	APIKey string `gorm:"column:apiKey"`
	Token  string `gorm:"column:token"`
}

// DataKeys returns the admin Zerodha pair that authenticates the historical
// candle API.
func (s *Store) DataKeys(ctx context.Context) (Credentials, error) {
	var row keyRow
	err := s.db.WithContext(ctx).
		Table("BrokerKeys").
		Select("BrokerKeys.apiKey AS apiKey, BrokerKeys.token AS token").
		Joins("INNER JOIN Users ON BrokerKeys.userId = Users.id").
		Joins("INNER JOIN Brokers ON BrokerKeys.brokerId = Brokers.id").
		Where("Users.role = ? AND Brokers.name = ? AND BrokerKeys.status = ?", "admin", "Zerodha", true).
		Take(&row).Error
	if err != nil {
		return Credentials{}, fmt.Errorf("market data keys: %w", err)
	}
	return Credentials{APIKey: row.APIKey, AccessToken: row.Token}, nil
}

// OrderKeys returns the active Upstox pair that authenticates order placement.
func (s *Store) OrderKeys(ctx context.Context) (Credentials, error) {
	var row keyRow
	err := s.db.WithContext(ctx).
		Table("BrokerKeys").
		Select("BrokerKeys.apiKey AS apiKey, BrokerKeys.token AS token").
		Joins("INNER JOIN Brokers ON BrokerKeys.brokerId = Brokers.id").
		Where("Brokers.name = ? AND BrokerKeys.status = ?", "Upstox", true).
		Take(&row).Error
	if err != nil {
		return Credentials{}, fmt.Errorf("order keys: %w", err)
	}
	return Credentials{APIKey: row.APIKey, AccessToken: row.Token}, nil
}

func (s *Store) RecordTrade(ctx context.Context, rec TradeRecord) error {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}
