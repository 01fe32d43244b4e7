package auth

import (
	"sync"
	"time"
)

type failures struct {
	count       int
	lockedUntil time.Time
	lastSeen    time.Time
}

// Lockout counts failed attempts per key and locks a key out for a while
// once it reaches the threshold. State is in memory only.
type Lockout struct {
	mu        sync.Mutex
	entries   map[string]*failures
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockout creates a tracker that locks after threshold failures.
func NewLockout(threshold int, duration time.Duration) *Lockout {
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	return &Lockout{
		entries:   make(map[string]*failures),
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// Fail records a failure and reports whether key is now locked.
func (l *Lockout) Fail(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.entries[key]
	if !ok {
		e = &failures{}
		l.entries[key] = e
	}
	if now.Before(e.lockedUntil) {
		return true
	}
	if !e.lockedUntil.IsZero() {
		// Previous lockout expired; start over.
		*e = failures{}
	}

	e.count++
	e.lastSeen = now
	if e.count >= l.threshold {
		e.lockedUntil = now.Add(l.duration)
		return true
	}
	return false
}

// Locked reports whether key is currently locked out.
func (l *Lockout) Locked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	return ok && l.now().Before(e.lockedUntil)
}

// Reset forgets the failures of key.
func (l *Lockout) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// sweep drops entries idle for longer than the lockout duration. l.mu must be held.
func (l *Lockout) sweep(now time.Time) {
	for key, e := range l.entries {
		if now.After(e.lockedUntil) && now.Sub(e.lastSeen) > l.duration {
			delete(l.entries, key)
		}
	}
}
