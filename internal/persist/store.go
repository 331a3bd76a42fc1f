// Package persist writes order book snapshots to the local filesystem
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"book_collector/internal/book"
	"book_collector/internal/core"
	apperrors "book_collector/pkg/errors"
)

// Store persists one JSON document per exchange/symbol pair under a
// base directory. Writes go through a temp file and an atomic rename so
// readers never observe a partially written snapshot.
type Store struct {
	dir    string
	logger core.ILogger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger core.ILogger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Path returns the snapshot file location for an exchange/symbol pair
func (s *Store) Path(exchange, symbol string) string {
	return filepath.Join(s.dir, exchange, symbol+".json")
}

// Save writes a snapshot, replacing any previous one for the same pair
func (s *Store) Save(snap *book.Snapshot) error {
	path := s.Path(snap.Exchange, snap.Symbol)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w: %w", err, apperrors.ErrPersist)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s/%s: %w: %w", snap.Exchange, snap.Symbol, err, apperrors.ErrPersist)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w: %w", err, apperrors.ErrPersist)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot file: %w: %w", err, apperrors.ErrPersist)
	}

	s.logger.Debug("Snapshot persisted", "path", path, "sequence", snap.Sequence)
	return nil
}

// Load reads the last persisted snapshot for an exchange/symbol pair.
// A missing file is reported with os.ErrNotExist.
func (s *Store) Load(exchange, symbol string) (*book.Snapshot, error) {
	data, err := os.ReadFile(s.Path(exchange, symbol))
	if err != nil {
		return nil, err
	}

	var snap book.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s/%s: %w", exchange, symbol, err)
	}
	return &snap, nil
}
