package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"alarm-manager/internal/domain"
)

// FileRepository implements domain.AlarmRepository using a JSON file.
// This is a secondary adapter.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a new file-based alarm repository.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	return &FileRepository{path: path}, nil
}

// Path returns the file backing the repository.
func (f *FileRepository) Path() string {
	return f.path
}

// Load reads the alarm set from disk.
func (f *FileRepository) Load() ([]domain.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read alarms: %w", err)
	}

	alarms, err := Decode(data)
	if err != nil {
		return nil, &domain.CorruptStateError{Source: f.path, Err: err}
	}
	return alarms, nil
}

// Save persists the alarm set to disk.
func (f *FileRepository) Save(alarms []domain.Alarm) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := Encode(alarms)
	if err != nil {
		return err
	}

	// Atomic write
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tmp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tmp: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}

	return nil
}

// DefaultPath returns the default alarm store path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", "alarms.json")
	}
	return filepath.Join(home, ".config", Namespace, "alarms.json")
}
