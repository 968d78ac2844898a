package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

// SQLiteStore keeps records in a single table keyed by tab.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string, ttl time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identity_records (
			target_id TEXT PRIMARY KEY,
			extraction_id TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_identity_records_expires ON identity_records(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec *browser.RefRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	now := s.now()
	var expires int64
	if s.ttl > 0 {
		expires = now.Add(s.ttl).Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO identity_records (target_id, extraction_id, url, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			extraction_id = excluded.extraction_id,
			url = excluded.url,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		rec.TargetID, rec.ExtractionID, rec.URL, string(data), now.Unix(), expires)
	if err != nil {
		return fmt.Errorf("save record for tab %s: %w", rec.TargetID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, targetID string) (*browser.RefRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM identity_records WHERE target_id = ? AND (expires_at = 0 OR expires_at > ?)`,
		targetID, s.now().Unix()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for tab %s", ErrNotFound, targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load record for tab %s: %w", targetID, err)
	}
	return decodeRecord(targetID, []byte(payload))
}

func (s *SQLiteStore) Delete(ctx context.Context, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identity_records WHERE target_id = ?`, targetID); err != nil {
		return fmt.Errorf("delete record for tab %s: %w", targetID, err)
	}
	return nil
}

// Prune removes expired records and reports how many went.
func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_records WHERE expires_at != 0 AND expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
