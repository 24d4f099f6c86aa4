// Package historystore persists harbor connection history: one
// append-only row per connect/disconnect transition, keyed by a
// ULID so the table sorts naturally by connection time. This is the
// harbor input's only persistent state; the Generator and clock
// scheduler stay in-memory only.
package historystore

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dhannyz/liquidsoap-go/internal/config"
)

// Connection is one harbor connect/disconnect transition.
type Connection struct {
	ID             string `gorm:"primaryKey"`
	Mountpoint     string `gorm:"index"`
	RemoteAddr     string
	Codec          string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
	BytesRelayed   int64
}

// Store wraps a GORM connection to the harbor history table.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to cfg.DSN using the pure-Go glebarez/sqlite driver and
// migrates the Connection table.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	level := gormlogger.Warn
	switch cfg.LogLevel {
	case "silent":
		level = gormlogger.Silent
	case "error":
		level = gormlogger.Error
	case "info":
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(level),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.AutoMigrate(&Connection{}); err != nil {
		return nil, fmt.Errorf("migrating history store: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// RecordConnect inserts a new open connection row and returns its ULID.
func (s *Store) RecordConnect(ctx context.Context, mountpoint, remoteAddr, codec string) (string, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	conn := Connection{
		ID:          id,
		Mountpoint:  mountpoint,
		RemoteAddr:  remoteAddr,
		Codec:       codec,
		ConnectedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&conn).Error; err != nil {
		return "", fmt.Errorf("recording harbor connect: %w", err)
	}
	return id, nil
}

// RecordDisconnect closes out the row for id with the final byte count.
func (s *Store) RecordDisconnect(ctx context.Context, id string, bytesRelayed int64) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&Connection{}).Where("id = ?", id).
		Updates(map[string]any{"disconnected_at": now, "bytes_relayed": bytesRelayed}).Error
	if err != nil {
		return fmt.Errorf("recording harbor disconnect: %w", err)
	}
	return nil
}

// Recent returns the most recent connections for mountpoint, newest
// first, bounded to limit rows.
func (s *Store) Recent(ctx context.Context, mountpoint string, limit int) ([]Connection, error) {
	var conns []Connection
	err := s.db.WithContext(ctx).
		Where("mountpoint = ?", mountpoint).
		Order("connected_at DESC, id DESC").
		Limit(limit).
		Find(&conns).Error
	if err != nil {
		return nil, fmt.Errorf("listing harbor connections: %w", err)
	}
	return conns, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
