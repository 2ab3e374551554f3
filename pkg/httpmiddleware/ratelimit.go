package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero disables the
	// limiter.
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key, the client IP by default.
	KeyFunc func(*http.Request) string
}

// window holds the counts of the previous and current fixed windows; the
// sliding count weights the previous one by its overlap.
type window struct {
	prev      float64
	curr      float64
	prevStart time.Time
	currStart time.Time
}

type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &rateLimiter{cfg: cfg, now: time.Now, clients: make(map[string]*window)}
}

// allow records a request of key and reports whether it fits in the limit.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	size := rl.cfg.Window
	w, found := rl.clients[key]
	if !found {
		w = &window{currStart: now}
		rl.clients[key] = w
	}
	if now.Sub(w.currStart) >= size {
		w.prev, w.prevStart = w.curr, w.currStart
		w.curr, w.currStart = 0, now.Truncate(size)
		if now.Sub(w.prevStart) >= 2*size {
			w.prev = 0
		}
	}

	overlap := max(0, 1-now.Sub(w.currStart).Seconds()/size.Seconds())
	count := w.prev*overlap + w.curr
	resetAt = w.currStart.Add(size)
	if count >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	w.curr++
	return max(0, int(float64(rl.cfg.Max)-count-1)), resetAt, true
}

// evict drops clients idle for two windows.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.clients {
		if now.Sub(w.currStart) >= 2*rl.cfg.Window {
			delete(rl.clients, key)
		}
	}
}

func (rl *rateLimiter) evictLoop(ctx context.Context) {
	t := time.NewTicker(2 * rl.cfg.Window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			rl.evict(now)
		}
	}
}

// RateLimit limits requests per client with a sliding window. Rejected
// requests get 429 with the storefront error envelope; every response
// carries X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine evicting idle clients
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	if cfg.Max > 0 && cfg.Window > 0 {
		go rl.evictLoop(ctx)
	}
	return rl.middleware()
}

func (rl *rateLimiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if rl.cfg.Max <= 0 || rl.cfg.Window <= 0 {
			return next
		}
		limit := strconv.Itoa(rl.cfg.Max)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := rl.now()
			remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := max(0, resetAt.Sub(now))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}

// writeError writes {"success":false,"message":msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
