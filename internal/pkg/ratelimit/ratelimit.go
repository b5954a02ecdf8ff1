// Package ratelimit implements a process-local fixed-window request limiter.
//
// State is an in-memory map guarded by a mutex: unreplicated, reset on process
// restart. Running multiple server instances gives each instance its own
// budget; that is an accepted single-instance boundary, not something this
// package tries to hide.
package ratelimit

import (
	"sync"
	"time"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonRateLimit  Reason = "rate_limit"
	ReasonTokenReuse Reason = "token_reuse"
)

// Result is the outcome of a single Check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Reason     Reason
}

type entry struct {
	count      int
	resetAt    time.Time
	usedTokens map[string]time.Time
}

// Limiter counts requests per identifier within a fixed window, and
// additionally remembers single-use tokens presented per identifier so a
// replayed token can be refused independently of the request budget.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*entry

	now func() time.Time
}

// New creates a limiter allowing max requests per window for each identifier.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (l *Limiter) get(id string, now time.Time) *entry {
	e, ok := l.entries[id]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(l.window)}
		l.entries[id] = e
	}
	return e
}

// Check records one request for id and reports whether it is within budget.
// The read-check-increment sequence is atomic with respect to concurrent
// requests for the same identifier.
func (l *Limiter) Check(id string) Result {
	return l.CheckToken(id, "")
}

// CheckToken is Check plus single-use-token replay detection: if token is
// non-empty and was previously marked used for this identifier, the request
// is denied with ReasonTokenReuse even when the count budget has room.
func (l *Limiter) CheckToken(id, token string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.get(id, now)

	if token != "" {
		if _, seen := e.usedTokens[token]; seen {
			return Result{
				Limit:      l.max,
				Remaining:  remaining(l.max, e.count),
				ResetAt:    e.resetAt,
				RetryAfter: e.resetAt.Sub(now),
				Reason:     ReasonTokenReuse,
			}
		}
	}

	if e.count >= l.max {
		return Result{
			Limit:      l.max,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: e.resetAt.Sub(now),
			Reason:     ReasonRateLimit,
		}
	}

	e.count++
	return Result{
		Allowed:   true,
		Limit:     l.max,
		Remaining: remaining(l.max, e.count),
		ResetAt:   e.resetAt,
	}
}

// MarkTokenUsed records token as consumed for id; the next CheckToken with the
// same pair is denied with ReasonTokenReuse.
func (l *Limiter) MarkTokenUsed(id, token string) {
	if token == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.get(id, now)
	if e.usedTokens == nil {
		e.usedTokens = make(map[string]time.Time)
	}
	e.usedTokens[token] = now
}

// Sweep evicts identifiers whose window has fully elapsed and whose token
// history has aged out, bounding memory growth. It is meant to be driven by a
// periodic job, independent of request handling. Returns the number of
// identifiers removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.entries {
		if now.Before(e.resetAt) {
			continue
		}
		stale := true
		for token, usedAt := range e.usedTokens {
			if now.Sub(usedAt) >= l.window {
				delete(e.usedTokens, token)
				continue
			}
			stale = false
		}
		if stale {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
