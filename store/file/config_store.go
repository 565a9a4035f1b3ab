package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shieldpool/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

const (
	configStoreFilename = "state.json"
)

type configStore struct {
	filePath string
	lock     *sync.RWMutex
	// data is used instead of the file when the store is in memory.
	data *storeData
}

// NewConfigStore returns a config store persisting to a json file in
// baseDir. An empty baseDir keeps the config in memory.
func NewConfigStore(baseDir string) (types.ConfigStore, error) {
	store := &configStore{lock: &sync.RWMutex{}}
	if baseDir == "" {
		return store, nil
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %w", err)
	}
	store.filePath = filepath.Join(baseDir, configStoreFilename)
	if _, err := os.Stat(store.filePath); errors.Is(err, os.ErrNotExist) {
		if err := store.write(storeData{}); err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
	}
	return store, nil
}

func (s *configStore) GetType() string {
	if s.filePath == "" {
		return types.InMemoryStore
	}
	return types.FileStore
}

func (s *configStore) GetDatadir() string {
	if s.filePath == "" {
		return ""
	}
	return filepath.Dir(s.filePath)
}

func (s *configStore) AddData(_ context.Context, data types.StoredConfig) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.write(encode(data)); err != nil {
		return fmt.Errorf("failed to write to store: %w", err)
	}
	return nil
}

// GetData returns nil if nothing was stored yet.
func (s *configStore) GetData(_ context.Context) (*types.StoredConfig, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	if data.isEmpty() {
		return nil, nil
	}
	cfg := data.decode()
	return &cfg, nil
}

func (s *configStore) CleanData(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.write(storeData{}); err != nil {
		return fmt.Errorf("failed to write to store: %w", err)
	}
	return nil
}

func (s *configStore) Close() {}

func (s *configStore) read() (storeData, error) {
	if s.filePath == "" {
		if s.data == nil {
			return storeData{}, nil
		}
		return *s.data, nil
	}

	buf, err := os.ReadFile(s.filePath)
	if err != nil {
		return storeData{}, fmt.Errorf("failed to read file store: %w", err)
	}
	data := storeData{}
	if len(buf) <= 0 {
		return data, nil
	}
	if err := json.Unmarshal(buf, &data); err != nil {
		return storeData{}, fmt.Errorf("failed to parse file store: %w", err)
	}
	return data, nil
}

func (s *configStore) write(data storeData) error {
	if s.filePath == "" {
		s.data = &data
		return nil
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.filePath, buf, 0o600); err != nil {
		return err
	}
	log.Debugf("config written to %s", s.filePath)
	return nil
}
