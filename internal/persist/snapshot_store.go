package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"diary-client/internal/domain"
)

// ErrMalformedSnapshot indica que el slot contiene datos ilegibles.
var ErrMalformedSnapshot = errors.New("malformed session snapshot")

// SnapshotStore es el slot nombrado donde se persiste la sesion entre
// reinicios. Load devuelve nil, nil si el slot esta vacio.
type SnapshotStore interface {
	Load(ctx context.Context) (*domain.SessionSnapshot, error)
	Save(ctx context.Context, snapshot domain.SessionSnapshot) error
	Clear(ctx context.Context) error
}

type memorySnapshotStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySnapshotStore() SnapshotStore {
	return &memorySnapshotStore{}
}

func (s *memorySnapshotStore) Load(_ context.Context) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return decodeSnapshot(s.data)
}

func (s *memorySnapshotStore) Save(_ context.Context, snapshot domain.SessionSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = raw
	return nil
}

func (s *memorySnapshotStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// FileSnapshotStore guarda el snapshot como JSON en disco.
type FileSnapshotStore struct {
	mu   sync.Mutex
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Load(_ context.Context) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *FileSnapshotStore) Save(_ context.Context, snapshot domain.SessionSnapshot) error {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	return os.Rename(tmpName, s.path)
}

func (s *FileSnapshotStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

func decodeSnapshot(raw []byte) (*domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return &snap, nil
}
