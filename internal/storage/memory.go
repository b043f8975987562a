package storage

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStorage keeps values in process memory. Nothing expires.
type MemoryStorage struct {
	store *gocache.Cache
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		store: gocache.New(gocache.NoExpiration, 0),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T for key %q", v, key)
	}
	return clone(b), nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.store.Set(key, clone(value), gocache.NoExpiration)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
