// Package memory implements session storage on top of go-cache. With a file
// path the whole cache is snapshotted after every write and reloaded on
// start, which gives the same lifetime as browser local storage.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"registrar/internal/domain"
)

type Storage struct {
	cache  *gocache.Cache
	path   string
	fileMu sync.Mutex
}

var _ domain.SessionStorage = (*Storage)(nil)

// New returns storage that lives as long as the process.
func New() *Storage {
	return &Storage{cache: gocache.New(gocache.NoExpiration, 0)}
}

// NewWithFile returns storage persisted to path. A missing file starts empty.
func NewWithFile(path string) (*Storage, error) {
	s := New()
	s.path = path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err := s.cache.LoadFile(path); err != nil {
		return nil, fmt.Errorf("load session storage %s: %w", path, err)
	}
	return s, nil
}

func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	str, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("session key %s holds %T", key, v)
	}
	return str, true, nil
}

func (s *Storage) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value, gocache.NoExpiration)
	return s.persist()
}

func (s *Storage) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return s.persist()
}

func (s *Storage) persist() error {
	if s.path == "" {
		return nil
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if err := s.cache.SaveFile(s.path); err != nil {
		return fmt.Errorf("save session storage %s: %w", s.path, err)
	}
	return nil
}
