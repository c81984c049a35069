// Package persistence implements crash-safe per-(strategy,symbol) storage
// for the pending signal, scheduled signal, and partial-milestone slots,
// plus one risk slot per risk group. Built on github.com/spf13/afero so the
// atomic-write protocol is testable against an in-memory filesystem without
// touching disk.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/lumenquant/coreengine/internal/logger"
)

// ErrCorrupt is returned (and logged, never propagated as fatal) when a
// slot's JSON fails to parse. Store recovers by deleting the slot and
// reporting as if it were empty.
var ErrCorrupt = errors.New("persistence: corrupt slot data")

// Store is the filesystem-backed persistence layer. A Store built with
// NewNoop makes every operation a no-op, for callers that want an
// in-memory-only run with no disk side effects.
type Store struct {
	fs       afero.Fs
	dir      string
	noop     bool
	mu       sync.Mutex
	log      *logger.Logger
}

// New creates a disk-backed Store rooted at dir, using the real OS
// filesystem.
func New(dir string) *Store {
	return NewWithFs(afero.NewOsFs(), dir)
}

// NewWithFs creates a Store over an arbitrary afero.Fs, letting tests use
// afero.NewMemMapFs() to exercise the atomic-write protocol without touching
// disk.
func NewWithFs(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir, log: logger.Component("persistence")}
}

// NewNoop creates a Store where every read returns nil and every write
// succeeds without touching any backing storage.
func NewNoop() *Store {
	return &Store{noop: true, log: logger.Component("persistence")}
}

func (s *Store) path(subdir, key string) string {
	return filepath.Join(s.dir, subdir, key+".json")
}

// ReadSlot reads and JSON-decodes the slot at subdir/key into dst. It
// returns (false, nil) if the slot is empty or missing. On a parse
// failure it deletes the corrupt file and returns (false, ErrCorrupt) so
// the caller can log and proceed as if empty.
func (s *Store) ReadSlot(subdir, key string, dst any) (found bool, err error) {
	if s.noop {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(subdir, key)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("persistence: read %s: %w", p, err)
	}
	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Str("slot", p).Err(err).Msg("corrupt slot data, deleting and proceeding as empty")
		_ = s.fs.Remove(p)
		return false, ErrCorrupt
	}
	return true, nil
}

// WriteSlot atomically writes v as JSON to subdir/key: write to a temp
// sibling, then rename over the destination, so a crash mid-write never
// leaves a partially-written file visible.
func (s *Store) WriteSlot(subdir, key string, v any) error {
	if s.noop {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}

	dir := filepath.Join(s.dir, subdir)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: mkdir %s: %w", dir, err)
	}

	dest := s.path(subdir, key)
	tmp := dest + ".tmp"

	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: open temp %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("persistence: write temp %s: %w", tmp, err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("persistence: close temp %s: %w", tmp, err)
	}

	if err := s.fs.Rename(tmp, dest); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("persistence: rename %s -> %s: %w", tmp, dest, err)
	}
	return nil
}

// DeleteSlot removes subdir/key, treating a missing file as success.
func (s *Store) DeleteSlot(subdir, key string) error {
	if s.noop {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path(subdir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persistence: delete %s: %w", s.path(subdir, key), err)
	}
	return nil
}

// Slot subdirectory names.
const (
	SubdirSignal   = "signal"
	SubdirSchedule = "schedule"
	SubdirPartial  = "partial"
	SubdirRisk     = "risk"
)

// SlotKey builds the "{strategy}_{symbol}" key used for signal/schedule/partial slots.
func SlotKey(strategyName, symbol string) string {
	return strategyName + "_" + symbol
}
