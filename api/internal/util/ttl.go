package util

import (
	"sync"
	"time"
)

// Expiring holds a lazily loaded value together with the time it was fetched.
// Get reloads once the value is older than the TTL; a zero TTL never expires.
type Expiring[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	load      func() (T, error)
	now       func() time.Time
	value     T
	fetchedAt time.Time
	loaded    bool
}

func NewExpiring[T any](ttl time.Duration, load func() (T, error)) *Expiring[T] {
	return &Expiring[T]{ttl: ttl, load: load, now: time.Now}
}

// WithClock swaps the time source; meant for tests.
func (e *Expiring[T]) WithClock(now func() time.Time) *Expiring[T] {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
	return e
}

func (e *Expiring[T]) Get() (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded && !e.staleLocked() {
		return e.value, nil
	}
	v, err := e.load()
	if err != nil {
		var zero T
		return zero, err
	}
	e.value, e.fetchedAt, e.loaded = v, e.now(), true
	return v, nil
}

// FetchedAt reports when the current value was loaded; zero if never.
func (e *Expiring[T]) FetchedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fetchedAt
}

func (e *Expiring[T]) Invalidate() {
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()
}

func (e *Expiring[T]) staleLocked() bool {
	return e.ttl > 0 && e.now().Sub(e.fetchedAt) > e.ttl
}
