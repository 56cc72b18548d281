// Package persist is a read-through/write-through cache of one JSON value
// over a kvstore.Store. Storage problems never reach callers: the in-memory
// value is always updated and the failure is logged.
package persist

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zulandar/docchat/internal/kvstore"
	"github.com/zulandar/docchat/internal/logger"
	"go.uber.org/zap"
)

// StorageError describes a failed read or write of a persisted value.
type StorageError struct {
	Key string
	Op  string // "read", "decode", "encode", "write", "delete"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("persist: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Value holds the current value for one key.
type Value[T any] struct {
	store kvstore.Store
	key   string
	def   T
	log   *zap.Logger

	mu      sync.Mutex
	current T
	lastErr error
}

// New reads key from store once. A missing, unreadable or malformed entry
// yields def. store may be nil, in which case the value lives in memory only.
func New[T any](store kvstore.Store, key string, def T, log *zap.Logger) *Value[T] {
	v := &Value[T]{
		store:   store,
		key:     key,
		def:     def,
		log:     logger.OrNop(log),
		current: def,
	}
	v.load()
	return v
}

func (v *Value[T]) load() {
	if v.store == nil {
		return
	}
	raw, ok, err := v.store.Get(v.key)
	if err != nil {
		v.fail(&StorageError{Key: v.key, Op: "read", Err: err})
		return
	}
	if !ok {
		return
	}
	var decoded T
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		v.fail(&StorageError{Key: v.key, Op: "decode", Err: err})
		return
	}
	v.log.Debug("persist: loaded value", zap.String("key", v.key))
	v.current = decoded
}

// Key returns the storage key.
func (v *Value[T]) Key() string { return v.key }

// Get returns the in-memory value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and writes it through to the store.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = value
	v.write(value)
}

// Update computes the new value from the previous one under the lock, so
// concurrent updaters never act on a stale copy. It returns the stored value.
func (v *Value[T]) Update(fn func(prev T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = fn(v.current)
	v.write(v.current)
	return v.current
}

// Clear resets the value to its default and removes the stored entry.
func (v *Value[T]) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = v.def
	if v.store == nil {
		return
	}
	if err := v.store.Delete(v.key); err != nil {
		v.fail(&StorageError{Key: v.key, Op: "delete", Err: err})
	}
}

// Err returns the most recent storage failure, if any. It exists for
// diagnostics; callers never need to check it to get a usable value.
func (v *Value[T]) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// write must be called with mu held.
func (v *Value[T]) write(value T) {
	if v.store == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		v.fail(&StorageError{Key: v.key, Op: "encode", Err: err})
		return
	}
	if err := v.store.Set(v.key, string(data)); err != nil {
		v.fail(&StorageError{Key: v.key, Op: "write", Err: err})
		return
	}
	v.lastErr = nil
}

func (v *Value[T]) fail(err *StorageError) {
	v.lastErr = err
	v.log.Warn("persist: storage unavailable, keeping in-memory value",
		zap.String("key", err.Key), zap.String("op", err.Op), zap.Error(err.Err))
}
