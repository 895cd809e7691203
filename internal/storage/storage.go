package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store keeps every guild's policy in memory and mirrors it to a JSON file.
// All reads hand out copies; all writes go through Update so a command's
// read-modify-write and the following flush happen under one lock.
type Store struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
	data   fileLayout
}

type fileLayout struct {
	Guilds map[string]*GuildConfig `json:"guilds"`
}

// New loads the store from path. A missing or unreadable file yields an
// empty store rather than an error.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	data, err := load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("store file not found, starting empty", zap.String("path", path))
		} else {
			logger.Warn("store load failed, starting empty", zap.String("path", path), zap.Error(err))
		}
		data = fileLayout{Guilds: make(map[string]*GuildConfig)}
	}
	s.data = data
	return s
}

func load(path string) (fileLayout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileLayout{}, err
	}
	var data fileLayout
	if err := json.Unmarshal(raw, &data); err != nil {
		return fileLayout{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if data.Guilds == nil {
		data.Guilds = make(map[string]*GuildConfig)
	}
	for id, cfg := range data.Guilds {
		if cfg == nil {
			delete(data.Guilds, id)
			continue
		}
		cfg.normalize()
	}
	return data, nil
}

// Guild returns a copy of the guild's policy, creating the default entry on
// first access. The new entry is written on the next persist.
func (s *Store) Guild(guildID string) GuildConfig {
	s.mu.RLock()
	cfg, ok := s.data.Guilds[guildID]
	if ok {
		clone := cfg.Clone()
		s.mu.RUnlock()
		return clone
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guildLocked(guildID).Clone()
}

// Update applies fn to the guild's policy and persists the whole store.
// A persist failure is returned but the in-memory change is kept.
func (s *Store) Update(guildID string, fn func(cfg *GuildConfig)) (GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.guildLocked(guildID)
	fn(cfg)
	snapshot := cfg.Clone()
	if err := s.persistLocked(); err != nil {
		s.logger.Error("store persist failed", zap.String("path", s.path), zap.String("guild_id", guildID), zap.Error(err))
		return snapshot, err
	}
	return snapshot, nil
}

// Save flushes the current state to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) guildLocked(guildID string) *GuildConfig {
	cfg := s.data.Guilds[guildID]
	if cfg == nil {
		fresh := NewGuildConfig()
		cfg = &fresh
		s.data.Guilds[guildID] = cfg
	}
	return cfg
}

func (s *Store) persistLocked() error {
	encoded, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
