// Package ratelimit throttles requests per client address.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "github.com/jw6ventures/planner/internal/http/errors"
)

// DefaultMaxClients bounds the number of tracked clients.
const DefaultMaxClients = 10000

// Limiter keeps one token bucket per client address. Buckets idle for twice
// the sweep interval are dropped by a background goroutine until Stop.
type Limiter struct {
	perSecond rate.Limit
	burst     int
	sweep     time.Duration
	clients   *Resolver

	mu         sync.Mutex
	buckets    map[string]*bucket
	maxClients int
	now        func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// New starts a limiter allowing perSecond requests with the given burst per
// client. Client addresses are resolved by clients.
func New(perSecond rate.Limit, burst int, sweep time.Duration, clients *Resolver) *Limiter {
	l := &Limiter{
		perSecond:  perSecond,
		burst:      burst,
		sweep:      sweep,
		clients:    clients,
		buckets:    make(map[string]*bucket),
		maxClients: DefaultMaxClients,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow takes one token for key. When none is left it reports how long the
// client should wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxClients {
			l.dropLeastRecent()
		}
		b = &bucket{tokens: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.tokens.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// dropLeastRecent must be called with mu held.
func (l *Limiter) dropLeastRecent() {
	var victim string
	var oldest time.Time
	for key, b := range l.buckets {
		if victim == "" || b.lastSeen.Before(oldest) {
			victim, oldest = key, b.lastSeen
		}
	}
	delete(l.buckets, victim)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.dropIdle(l.now().Add(-2 * l.sweep))
		}
	}
}

func (l *Limiter) dropIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the background sweep. The limiter keeps working afterwards.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Middleware answers 429 with a Retry-After header once the client's bucket
// is empty.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(l.clients.ClientIP(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				httperrors.Write(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(wait time.Duration) int {
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
