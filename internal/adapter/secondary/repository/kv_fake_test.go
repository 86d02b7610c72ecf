package repository

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeKVStore is an in-memory KVStore for unit tests.
type fakeKVStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrMissing
	}
	return v, nil
}

func (f *fakeKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

var errKVDown = errors.New("connection refused")
