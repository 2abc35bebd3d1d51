package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Persister crash-safely persists each market's PositionCache as its own
// JSON file, so a restart can reconcile open positions before the first
// trading cycle runs (the reconciliation described in SPEC_FULL.md's
// supplemented-features section) rather than starting blind.
//
// Adapted from the teacher's internal/store/store.go: same
// directory-of-JSON-files layout and atomic write-then-rename, generalized
// from a single strategy.Position type to the session's PositionCache.
type Persister struct {
	dir string
	mu  sync.Mutex
}

// OpenPersister creates a persister backed by dir, creating it if needed.
func OpenPersister(dir string) (*Persister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session persist dir: %w", err)
	}
	return &Persister{dir: dir}, nil
}

func (p *Persister) pathFor(marketID uuid.UUID) string {
	return filepath.Join(p.dir, "pos_"+marketID.String()+".json")
}

// SavePosition atomically persists pos to disk.
func (p *Persister) SavePosition(pos PositionCache) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position cache: %w", err)
	}

	path := p.pathFor(pos.MarketID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write position cache: %w", err)
	}
	return os.Rename(tmp, path)
}

// RemovePosition deletes the persisted file for marketID, once the
// position is closed. Missing files are not an error.
func (p *Persister) RemovePosition(marketID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := os.Remove(p.pathFor(marketID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove position cache: %w", err)
	}
	return nil
}

// LoadAll restores every persisted PositionCache found in the directory,
// used on startup to reconcile against the repository/venue before the
// first trading cycle.
func (p *Persister) LoadAll() ([]PositionCache, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read session persist dir: %w", err)
	}

	var out []PositionCache
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var pos PositionCache
		if err := json.Unmarshal(data, &pos); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", entry.Name(), err)
		}
		out = append(out, pos)
	}
	return out, nil
}
