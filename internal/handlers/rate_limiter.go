package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vegbox-admin/api/internal/platform/requestctx"
)

const anonymousActorBucket = "anonymous"

// fixedWindowLimiter counts requests per key in fixed windows.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	hits   map[string]windowCount
}

type windowCount struct {
	count int
	reset time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) *fixedWindowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		hits:   make(map[string]windowCount),
	}
}

// allow records a hit for key. When the limit is reached it reports the time
// left until the window resets.
func (l *fixedWindowLimiter) allow(key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = anonymousActorBucket
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.hits[key]
	if !ok || !now.Before(current.reset) {
		l.pruneLocked(now)
		l.hits[key] = windowCount{count: 1, reset: now.Add(l.window)}
		return true, 0
	}
	if current.count >= l.limit {
		return false, current.reset.Sub(now)
	}
	current.count++
	l.hits[key] = current
	return true, 0
}

func (l *fixedWindowLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.hits {
		if !now.Before(entry.reset) {
			delete(l.hits, key)
		}
	}
}

// ActorRateLimit limits requests per actor to limit within window. Requests
// without an actor share one bucket. A non-positive limit disables limiting.
func ActorRateLimit(responder *ErrorResponder, limit int, window time.Duration, clock func() time.Time) func(http.Handler) http.Handler {
	if responder == nil {
		responder = NewErrorResponder(nil)
	}
	limiter := newFixedWindowLimiter(limit, window, clock)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := requestctx.ActorFrom(r.Context())
			ok, retryAfter := limiter.allow(actor.ID)
			if !ok {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				responder.Reject(r.Context(), w, http.StatusTooManyRequests, "error.rate_limited", map[string]any{"seconds": seconds})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
