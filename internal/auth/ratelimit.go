package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AnonLimiter caps anonymous account creation per source IP. Each IP gets
// a token bucket refilling at perHour/hour with a burst of perHour.
type AnonLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	perHour  int
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewAnonLimiter(perHour int) *AnonLimiter {
	return &AnonLimiter{
		limiters: make(map[string]*ipLimiter),
		perHour:  perHour,
	}
}

// Allow reports whether the IP may create another anonymous account now.
func (l *AnonLimiter) Allow(ip string) bool {
	if l.perHour <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.limiters[ip]
	if entry == nil {
		entry = &ipLimiter{
			lim: rate.NewLimiter(rate.Limit(float64(l.perHour)/3600), l.perHour),
		}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.lim.Allow()
}

// Prune drops limiters idle longer than maxIdle. Called periodically by
// the janitor.
func (l *AnonLimiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	n := 0
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
			n++
		}
	}
	return n
}

// Reset clears all limiter state. Test hook.
func (l *AnonLimiter) Reset() {
	l.mu.Lock()
	l.limiters = make(map[string]*ipLimiter)
	l.mu.Unlock()
}
