package jobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/textwave/textwave/internal/config"
	_ "modernc.org/sqlite"
)

// Chunks from jobs that were never finished stay around this long before the
// startup prune reclaims them.
const defaultRetention = 14 * 24 * time.Hour

// Store persists per-chunk audio in SQLite so an interrupted conversion can
// pick up where it stopped. When persistence is disabled the store is a
// no-op: every lookup misses and every write is dropped.
type Store struct {
	db    *sql.DB
	cfg   config.JobStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the job store according to config.
func Open(ctx context.Context, cfg config.JobStoreConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Prune(ctx, defaultRetention); err != nil {
		log.Warn("job store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS chunks (
    fingerprint TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    text_hash TEXT NOT NULL,
    audio BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY(fingerprint, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_created ON chunks(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LookupChunk fetches previously saved audio for a chunk. A row whose text
// hash no longer matches chunkText belongs to an older rendition of the
// document and counts as a miss.
func (s *Store) LookupChunk(ctx context.Context, fingerprint string, index int, chunkText string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, nil
	}
	var (
		storedHash string
		audio      []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT text_hash, audio FROM chunks WHERE fingerprint = ? AND chunk_index = ?`,
		fingerprint, index).Scan(&storedHash, &audio)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != hashText(chunkText) {
		return nil, false, nil
	}
	return audio, true, nil
}

// SaveChunk records synthesized audio for one chunk, replacing any stale row
// for the same index.
func (s *Store) SaveChunk(ctx context.Context, fingerprint string, index int, chunkText string, audio []byte) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks(fingerprint, chunk_index, text_hash, audio, created_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint, chunk_index) DO UPDATE SET
		     text_hash=excluded.text_hash, audio=excluded.audio, created_at=excluded.created_at`,
		fingerprint, index, hashText(chunkText), audio, s.clock().UTC())
	return err
}

// DeleteJob removes every chunk stored for a fingerprint, called once the
// assembled output file exists.
func (s *Store) DeleteJob(ctx context.Context, fingerprint string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE fingerprint = ?`, fingerprint)
	return err
}

// Prune drops chunks older than maxAge, reclaiming space from conversions
// that were abandoned rather than resumed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) error {
	if s.db == nil || maxAge <= 0 {
		return nil
	}
	cutoff := s.clock().Add(-maxAge).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE created_at < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Info("pruned stale chunks", slog.Int64("count", n))
	}
	return nil
}

func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
