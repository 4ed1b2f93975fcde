package httpx

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// UserLimiter aplica um token bucket por usuário.
type UserLimiter struct {
	mu      sync.Mutex
	perUser map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func NewUserLimiter(perSecond float64, burst int) *UserLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &UserLimiter{
		perUser: make(map[string]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *UserLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.perUser[userID]
	if !ok {
		l.evict(now)
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.perUser[userID] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// evict descarta limiters parados; roda só quando entra usuário novo.
func (l *UserLimiter) evict(now time.Time) {
	for id, e := range l.perUser {
		if now.Sub(e.seen) > limiterIdle {
			delete(l.perUser, id)
		}
	}
}

// Middleware precisa rodar depois de RequireUser.
func (l *UserLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(UserID(r)) {
			WriteError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
