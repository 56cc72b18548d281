package kvstore

import (
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local store. Entries never expire; it is used for
// tests and for the "memory" driver where state need not survive a restart.
type Memory struct {
	cache  *cache.Cache
	closed atomic.Bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	if m.closed.Load() {
		return "", false, ErrClosed
	}
	v, ok := m.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *Memory) Set(key, value string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *Memory) Delete(key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cache.Delete(key)
	return nil
}

// Close marks the store unusable. Contents are discarded.
func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.cache.Flush()
	}
	return nil
}
