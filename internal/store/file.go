package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// FileStore keeps credentials in a JSON object file ({"userId": "token"}).
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *logging.Logger
}

// NewFileStore returns a store backed by the JSON file at path. The file
// is created on first Save.
func NewFileStore(path string, log *logging.Logger) *FileStore {
	return &FileStore{path: path, log: log.Sub("store.file")}
}

func (s *FileStore) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save rewrites the whole file through a temp file and rename so a crash
// never leaves it truncated.
func (s *FileStore) Save(_ context.Context, userID, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if errors.Is(err, ErrNotFound) {
		data = map[string]string{}
	} else if err != nil {
		return err
	}
	data[userID] = credential

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}

	s.log.Debug().Str("path", s.path).Int("users", len(data)).Msg("credentials saved")
	return nil
}

func (s *FileStore) Close() error { return nil }

// read loads the file. Callers must hold s.mu.
func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing credential file %s: %w", s.path, err)
	}
	return data, nil
}
