package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"
)

// gobFileVersion guards the on-disk layout of the gob record file.
const gobFileVersion = 1

// gobFile is the serialized form of the record store.
type gobFile struct {
	Version int
	NextID  int64
	Records []EmbeddingRecord
}

// GobRecordStore is a file-backed RecordStore for deployments without a
// PostgreSQL database. The whole record set is held in memory and flushed
// to a gob file on every mutation.
type GobRecordStore struct {
	path    string
	mu      sync.Mutex
	nextID  int64
	records []EmbeddingRecord
}

// NewGobRecordStore opens or creates the record file.
func NewGobRecordStore(path string) (*GobRecordStore, error) {
	s := &GobRecordStore{path: path, nextID: 1}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	var data gobFile
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding record file: %w", err)
	}
	if data.Version != gobFileVersion {
		return nil, fmt.Errorf("unsupported record file version %d", data.Version)
	}
	s.records = data.Records
	s.nextID = data.NextID
	if s.nextID < 1 {
		s.nextID = 1
	}
	return s, nil
}

// flushLocked writes the record set to disk. Caller must hold s.mu.
func (s *GobRecordStore) flushLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating record file: %w", err)
	}
	data := gobFile{Version: gobFileVersion, NextID: s.nextID, Records: s.records}
	if err := gob.NewEncoder(f).Encode(&data); err != nil {
		f.Close()
		return fmt.Errorf("encoding record file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing record file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing record file: %w", err)
	}
	return nil
}

// Insert assigns IDs to the records and persists them.
func (s *GobRecordStore) Insert(_ context.Context, records []EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		records[i].ID = s.nextID
		s.nextID++
		s.records = append(s.records, records[i])
	}
	return s.flushLocked()
}

// All returns a copy of every stored record.
func (s *GobRecordStore) All(_ context.Context) ([]EmbeddingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EmbeddingRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// DeleteIdentity removes every record for an identity.
func (s *GobRecordStore) DeleteIdentity(_ context.Context, identity int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, rec := range s.records {
		if rec.Identity == identity {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.flushLocked()
}

// Rekey relabels every record from one identity key to another.
func (s *GobRecordStore) Rekey(_ context.Context, oldKey, newKey int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for i := range s.records {
		if s.records[i].Identity == oldKey {
			s.records[i].Identity = newKey
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, s.flushLocked()
}

// Count returns the number of stored records.
func (s *GobRecordStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// Identities returns the distinct identity keys, sorted ascending.
func (s *GobRecordStore) Identities(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{})
	for _, rec := range s.records {
		seen[rec.Identity] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close is a no-op; every mutation is already flushed.
func (s *GobRecordStore) Close() error { return nil }
