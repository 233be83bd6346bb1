package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts buckets that have not been used for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100, IdleTTL: 10 * time.Minute}
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	max        float64
	rate       float64
	lastRefill time.Time
}

// take refills the bucket and consumes a token. When empty it returns the
// number of seconds until one is available.
func (b *tokenBucket) take(now time.Time) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * b.rate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/b.rate) + 1
}

func (b *tokenBucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefill)
}

type bucketStore struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	cfg       RateLimitConfig
	lastSweep time.Time
	now       func() time.Time
}

func newBucketStore(cfg RateLimitConfig) *bucketStore {
	return &bucketStore{buckets: make(map[string]*tokenBucket), cfg: cfg, now: time.Now}
}

func (s *bucketStore) get(key string, now time.Time) *tokenBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.IdleTTL > 0 && now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, b := range s.buckets {
			if b.idleSince(now) > s.cfg.IdleTTL {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &tokenBucket{
			tokens:     float64(s.cfg.BurstSize),
			max:        float64(s.cfg.BurstSize),
			rate:       s.cfg.RequestsPerSecond,
			lastRefill: now,
		}
		s.buckets[key] = b
	}
	return b
}

// RateLimit applies a token bucket per client. Authenticated callers are
// keyed by actor id, everyone else by remote IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newBucketStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if actorID, ok := c.Get("actor_id").(string); ok && actorID != "" {
				key = "actor:" + actorID
			}

			now := store.now()
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if ok, retry := store.get(key, now).take(now); !ok {
				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
