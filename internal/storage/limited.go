package storage

import (
	"context"
	"fmt"
)

// LimitedStorage rejects writes whose value is larger than maxBytes,
// the way a browser rejects writes past the origin's storage quota.
type LimitedStorage struct {
	next     Storage
	maxBytes int
}

func NewLimitedStorage(next Storage, maxBytes int) *LimitedStorage {
	return &LimitedStorage{next: next, maxBytes: maxBytes}
}

func (l *LimitedStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return l.next.Get(ctx, key)
}

func (l *LimitedStorage) Set(ctx context.Context, key string, value []byte) error {
	if l.maxBytes > 0 && len(value) > l.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrQuotaExceeded, len(value), l.maxBytes)
	}
	return l.next.Set(ctx, key, value)
}

func (l *LimitedStorage) Delete(ctx context.Context, key string) error {
	return l.next.Delete(ctx, key)
}
