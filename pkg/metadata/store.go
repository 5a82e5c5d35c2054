package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

const corruptTimestampFormat = "20060102_150405"

// Store is the durable pool metadata file. All mutations are whole-file
// replacements; an unparseable file is quarantined with a timestamped
// suffix and replaced by a fresh empty collection.
type Store struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.WithComponent("metadata"),
	}
}

// Load returns the current collection. A missing file yields a fresh empty
// collection which is persisted immediately; a corrupt file is renamed to
// <path>.corrupt.<UTC timestamp> and likewise replaced.
func (s *Store) Load() (*types.PoolMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*types.PoolMetadata, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		meta := &types.PoolMetadata{Pools: []*types.PoolRecord{}, LastUpdated: time.Now().UTC()}
		if err := s.writeLocked(meta); err != nil {
			return nil, err
		}
		s.logger.Info().Str("path", s.path).Msg("Created new metadata file")
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta types.PoolMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt.%s", s.path, time.Now().UTC().Format(corruptTimestampFormat))
		if renameErr := os.Rename(s.path, quarantine); renameErr != nil {
			return nil, fmt.Errorf("failed to quarantine corrupt metadata file: %w", renameErr)
		}
		s.logger.Error().
			Str("path", s.path).
			Str("quarantine", quarantine).
			Err(err).
			Msg("Metadata file corrupt, quarantined and replaced")

		fresh := &types.PoolMetadata{Pools: []*types.PoolRecord{}, LastUpdated: time.Now().UTC()}
		if err := s.writeLocked(fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	if meta.Pools == nil {
		meta.Pools = []*types.PoolRecord{}
	}
	return &meta, nil
}

func (s *Store) writeLocked(meta *types.PoolMetadata) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// Whole-file replacement through a temp file so readers never observe
	// a partial write.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}
	return nil
}

// Save upserts a record: any existing entry with the same GUID, or holding
// the same lastMdDeviceName hint, is dropped first so stale duplicates
// cannot accumulate.
func (s *Store) Save(rec *types.PoolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadLocked()
	if err != nil {
		return err
	}

	kept := meta.Pools[:0]
	for _, p := range meta.Pools {
		if p.PoolGroupGUID == rec.PoolGroupGUID {
			continue
		}
		if rec.LastMdDeviceName != "" && p.LastMdDeviceName == rec.LastMdDeviceName {
			continue
		}
		kept = append(kept, p)
	}
	meta.Pools = append(kept, rec)
	meta.LastUpdated = time.Now().UTC()

	return s.writeLocked(meta)
}

// Remove deletes the record with the given GUID. Removing an absent GUID
// is not an error.
func (s *Store) Remove(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadLocked()
	if err != nil {
		return err
	}

	kept := meta.Pools[:0]
	for _, p := range meta.Pools {
		if p.PoolGroupGUID != guid {
			kept = append(kept, p)
		}
	}
	meta.Pools = kept
	meta.LastUpdated = time.Now().UTC()

	return s.writeLocked(meta)
}

// RemoveAll clears the whole collection.
func (s *Store) RemoveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(&types.PoolMetadata{
		Pools:       []*types.PoolRecord{},
		LastUpdated: time.Now().UTC(),
	})
}

// All returns every record.
func (s *Store) All() ([]*types.PoolRecord, error) {
	meta, err := s.Load()
	if err != nil {
		return nil, err
	}
	return meta.Pools, nil
}

// ByGUID returns the record for a pool GUID, or a not-found error.
func (s *Store) ByGUID(guid string) (*types.PoolRecord, error) {
	meta, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, p := range meta.Pools {
		if p.PoolGroupGUID == guid {
			return p, nil
		}
	}
	return nil, types.NotFoundf("no pool with guid %s", guid)
}

// ByMdName returns the record whose last known md device name matches, or
// a not-found error.
func (s *Store) ByMdName(name string) (*types.PoolRecord, error) {
	meta, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, p := range meta.Pools {
		if p.LastMdDeviceName == name {
			return p, nil
		}
	}
	return nil, types.NotFoundf("no pool with md device %s", name)
}

// BySerial returns the record containing the given drive serial, or a
// not-found error.
func (s *Store) BySerial(serial string) (*types.PoolRecord, error) {
	meta, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, p := range meta.Pools {
		if p.HasSerial(serial) {
			return p, nil
		}
	}
	return nil, types.NotFoundf("no pool containing drive serial %s", serial)
}

// Path returns the metadata file location.
func (s *Store) Path() string {
	return s.path
}
