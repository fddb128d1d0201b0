// Package locks arbitrates temporary exclusive control of a vehicle's
// position stream between the patrol simulation and an external session.
package locks

import (
	"sync"
	"time"
)

type lockEntry struct {
	session string
	expires time.Time
}

// Arbiter grants at most one live session lock per vehicle. Locks expire
// after a TTL unless the holder re-acquires; expiry is checked lazily on
// every operation, so there is no sweep goroutine to schedule.
type Arbiter struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[string]lockEntry
	now   func() time.Time
}

func NewArbiter(ttl time.Duration) *Arbiter {
	return &Arbiter{
		ttl:   ttl,
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// Acquire grants or refreshes the lock for sessionID. It returns false if a
// different session holds a live lock; contention is an expected outcome,
// not an error.
func (a *Arbiter) Acquire(vehicleID, sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.purgeLocked(now)
	if e, ok := a.locks[vehicleID]; ok && e.session != sessionID {
		return false
	}
	a.locks[vehicleID] = lockEntry{session: sessionID, expires: now.Add(a.ttl)}
	return true
}

// Release drops the lock if sessionID is the current holder; otherwise it
// is a no-op.
func (a *Arbiter) Release(vehicleID, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purgeLocked(a.now())
	if e, ok := a.locks[vehicleID]; ok && e.session == sessionID {
		delete(a.locks, vehicleID)
	}
}

// IsLocked reports whether a live lock exists for the vehicle. A logically
// expired lock is never observed as held.
func (a *Arbiter) IsLocked(vehicleID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purgeLocked(a.now())
	_, ok := a.locks[vehicleID]
	return ok
}

// Holder returns the current live holder session, if any.
func (a *Arbiter) Holder(vehicleID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purgeLocked(a.now())
	e, ok := a.locks[vehicleID]
	return e.session, ok
}

func (a *Arbiter) purgeLocked(now time.Time) {
	for id, e := range a.locks {
		if !e.expires.After(now) {
			delete(a.locks, id)
		}
	}
}
