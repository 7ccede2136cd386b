// ABOUTME: Idempotent execution keyed by caller-supplied idempotency keys.
// ABOUTME: Collapses in-flight duplicates with singleflight and replays completed results.

package dedupe

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency key reused with a different request")

// replay is a completed result and the fingerprint of the request that produced it.
type replay[V any] struct {
	fingerprint string
	value       V
}

// flight tracks callers currently holding a key.
type flight struct {
	fingerprint string
	callers     int
}

// Replayer runs a function at most once per key within the TTL.
// Concurrent callers with the same key and fingerprint share one execution;
// later callers receive the cached result. A caller presenting the same key
// with another fingerprint gets ErrFingerprintMismatch and fn is not run.
// Failed executions are not cached.
type Replayer[V any] struct {
	group singleflight.Group
	cache *Cache[replay[V]]

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewReplayer creates a Replayer with the given retention and size bound.
func NewReplayer[V any](ttl time.Duration, maxEntries int) *Replayer[V] {
	return &Replayer[V]{
		cache:    New[replay[V]](ttl, maxEntries),
		inflight: make(map[string]*flight),
	}
}

// Do returns the result for key, executing fn only if no completed or
// in-flight result exists. replayed is true when the caller did not run fn.
func (r *Replayer[V]) Do(key, fingerprint string, fn func() (V, error)) (v V, replayed bool, err error) {
	if cached, ok := r.cache.Get(key); ok {
		if cached.fingerprint != fingerprint {
			return v, false, ErrFingerprintMismatch
		}
		return cached.value, true, nil
	}

	if !r.join(key, fingerprint) {
		return v, false, ErrFingerprintMismatch
	}
	defer r.leave(key)

	ran := false
	res, err, _ := r.group.Do(key, func() (any, error) {
		// A caller that lost the race to an earlier flight finds the result here.
		if cached, ok := r.cache.Get(key); ok {
			if cached.fingerprint != fingerprint {
				return nil, ErrFingerprintMismatch
			}
			return cached.value, nil
		}
		ran = true
		val, err := fn()
		if err != nil {
			return val, err
		}
		r.cache.Put(key, replay[V]{fingerprint: fingerprint, value: val})
		return val, nil
	})
	if err != nil {
		return v, false, err
	}
	v, _ = res.(V)
	return v, !ran, nil
}

// join registers the caller on key, failing if callers with another
// fingerprint already hold it.
func (r *Replayer[V]) join(key, fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.inflight[key]
	if !ok {
		r.inflight[key] = &flight{fingerprint: fingerprint, callers: 1}
		return true
	}
	if f.fingerprint != fingerprint {
		return false
	}
	f.callers++
	return true
}

func (r *Replayer[V]) leave(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.inflight[key]
	f.callers--
	if f.callers == 0 {
		delete(r.inflight, key)
	}
}
