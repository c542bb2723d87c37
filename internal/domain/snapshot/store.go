package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when a snapshot cannot be found.
var ErrNotFound = errors.New("snapshot not found")

// Store provides snapshot persistence.
type Store interface {
	Save(ctx context.Context, subsystem string, content []byte) (Snapshot, error)
	Content(ctx context.Context, id string) ([]byte, error)
	Latest(ctx context.Context, subsystem string) (Snapshot, error)
	Delete(ctx context.Context, id string) error
}

type indexEntry struct {
	ID         string    `json:"id"`
	Subsystem  string    `json:"subsystem"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	CapturedAt time.Time `json:"captured_at"`
	Filename   string    `json:"filename"`
}

type index struct {
	Snapshots map[string]indexEntry `json:"snapshots"`
}

// FileStore implements Store on the local filesystem under a base directory.
// Content files are written before the index entry, so a crash never leaves
// an index entry pointing at missing content.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates a FileStore rooted at basePath.
func NewFileStore(basePath string) *FileStore {
	return &FileStore{basePath: basePath}
}

// Save stores content and returns the snapshot descriptor.
func (s *FileStore) Save(_ context.Context, subsystem string, content []byte) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o700); err != nil {
		return Snapshot{}, err
	}

	snap := New(subsystem, content, time.Now())
	filename := snap.ID + ".snapshot"

	if err := os.WriteFile(filepath.Join(s.basePath, filename), content, 0o600); err != nil {
		return Snapshot{}, err
	}

	idx, err := s.loadIndex()
	if err != nil {
		return Snapshot{}, err
	}
	idx.Snapshots[snap.ID] = indexEntry{
		ID:         snap.ID,
		Subsystem:  snap.Subsystem,
		Hash:       snap.Hash,
		Size:       snap.Size,
		CapturedAt: snap.CapturedAt,
		Filename:   filename,
	}
	if err := s.writeIndex(idx); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

// Content returns the stored bytes for a snapshot ID.
func (s *FileStore) Content(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}

	content, err := os.ReadFile(filepath.Join(s.basePath, entry.Filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return content, nil
}

// Latest returns the most recent snapshot for a subsystem.
func (s *FileStore) Latest(_ context.Context, subsystem string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return Snapshot{}, err
	}

	var best *indexEntry
	for id := range idx.Snapshots {
		entry := idx.Snapshots[id]
		if entry.Subsystem != subsystem {
			continue
		}
		if best == nil || entry.CapturedAt.After(best.CapturedAt) {
			best = &entry
		}
	}
	if best == nil {
		return Snapshot{}, ErrNotFound
	}

	return Snapshot{
		ID:         best.ID,
		Subsystem:  best.Subsystem,
		Hash:       best.Hash,
		Size:       best.Size,
		CapturedAt: best.CapturedAt,
	}, nil
}

// Delete removes a snapshot and its content.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	entry, ok := idx.Snapshots[id]
	if !ok {
		return ErrNotFound
	}

	if err := os.Remove(filepath.Join(s.basePath, entry.Filename)); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(idx.Snapshots, id)
	return s.writeIndex(idx)
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.basePath, "index.json")
}

func (s *FileStore) loadIndex() (*index, error) {
	idx := &index{Snapshots: make(map[string]indexEntry)}

	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, err
	}
	if idx.Snapshots == nil {
		idx.Snapshots = make(map[string]indexEntry)
	}
	return idx, nil
}

func (s *FileStore) writeIndex(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath(), data, 0o600)
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu       sync.Mutex
	snaps    map[string]Snapshot
	contents map[string][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		snaps:    make(map[string]Snapshot),
		contents: make(map[string][]byte),
	}
}

// Save stores content in memory.
func (s *MemStore) Save(_ context.Context, subsystem string, content []byte) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := New(subsystem, content, time.Now())
	stored := make([]byte, len(content))
	copy(stored, content)
	s.snaps[snap.ID] = snap
	s.contents[snap.ID] = stored
	return snap, nil
}

// Content returns the stored bytes.
func (s *MemStore) Content(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.contents[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// Latest returns the most recent snapshot for a subsystem.
func (s *MemStore) Latest(_ context.Context, subsystem string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best Snapshot
	found := false
	for _, snap := range s.snaps {
		if snap.Subsystem != subsystem {
			continue
		}
		if !found || snap.CapturedAt.After(best.CapturedAt) {
			best = snap
			found = true
		}
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}
	return best, nil
}

// Delete removes a snapshot.
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snaps[id]; !ok {
		return ErrNotFound
	}
	delete(s.snaps, id)
	delete(s.contents, id)
	return nil
}

// Ensure MemStore implements Store.
var _ Store = (*MemStore)(nil)
