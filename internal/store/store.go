// Package store persists identity records outside the browser process so a
// gateway restart or a second gateway replica can still act on indices from
// an earlier snapshot.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

// ErrNotFound is returned by Load when a tab has no record.
var ErrNotFound = browser.ErrNoRecord

// Store is a RecordStore that holds resources until closed.
type Store interface {
	browser.RecordStore
	io.Closer
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second

	switch cfg.Backend {
	case "", config.StoreMemory:
		logger.Info("identity store opened", "backend", config.StoreMemory, "capacity", cfg.Capacity)
		return memoryStore{browser.NewRefStore(cfg.Capacity)}, nil
	case config.StoreRedis:
		s, err := NewRedisStore(ctx, cfg.RedisURL, cfg.KeyPrefix, ttl)
		if err != nil {
			return nil, err
		}
		logger.Info("identity store opened", "backend", config.StoreRedis, "prefix", s.prefix, "ttl", ttl)
		return s, nil
	case config.StoreSQLite:
		path := config.ExpandHome(cfg.SQLitePath)
		s, err := NewSQLiteStore(ctx, path, ttl)
		if err != nil {
			return nil, err
		}
		logger.Info("identity store opened", "backend", config.StoreSQLite, "path", path, "ttl", ttl)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

type memoryStore struct {
	*browser.RefStore
}

func (memoryStore) Close() error { return nil }

func encodeRecord(rec *browser.RefRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record for tab %s: %w", rec.TargetID, err)
	}
	return data, nil
}

func decodeRecord(targetID string, data []byte) (*browser.RefRecord, error) {
	var rec browser.RefRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record for tab %s: %w", targetID, err)
	}
	return &rec, nil
}
