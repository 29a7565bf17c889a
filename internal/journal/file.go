package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"eth-scalper/internal/logger"
	"eth-scalper/internal/types"
)

// FileStore keeps the whole state in one JSON document, replaced atomically on save.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(ctx context.Context) types.EngineState {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(ctx, "State file unreadable, starting fresh", "path", f.path, "error", err)
		}
		return f.reset(ctx)
	}
	var s types.EngineState
	if err := json.Unmarshal(b, &s); err != nil {
		logger.Warn(ctx, "State file corrupt, starting fresh", "path", f.path, "error", err)
		return f.reset(ctx)
	}
	return normalize(s)
}

func (f *FileStore) Save(ctx context.Context, s types.EngineState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(s)
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) reset(ctx context.Context) types.EngineState {
	s := types.DefaultState()
	if err := f.write(s); err != nil {
		logger.Warn(ctx, "Failed to write default state", "path", f.path, "error", err)
	}
	return s
}

func (f *FileStore) write(s types.EngineState) error {
	b, err := json.MarshalIndent(normalize(s), "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
