package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultThrottleIdle  = 10 * time.Minute
	defaultThrottleSweep = 1024
)

// ThrottleOptions configures the per-address request throttle. It sits in
// front of every route as flood protection; the chat quota (CHAT_LIMIT posts
// per CHAT_WINDOW, 24h by default) is a separate, persistent limit owned by
// the chat service.
type ThrottleOptions struct {
	RPS   float64 // <= 0 disables the throttle
	Burst int     // <= 0 means 1
	// IdleTTL evicts buckets of addresses that went quiet.
	IdleTTL time.Duration
	// Exempt lists route templates that are never throttled.
	Exempt []string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Throttle keeps one token bucket per client address in process memory.
// It is safe for concurrent use.
type Throttle struct {
	rps    rate.Limit
	burst  int
	idle   time.Duration
	exempt map[string]struct{}

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
	now     func() time.Time
}

// NewThrottle builds a Throttle from opts.
func NewThrottle(opts ThrottleOptions) *Throttle {
	t := &Throttle{
		rps:     rate.Limit(opts.RPS),
		burst:   opts.Burst,
		idle:    opts.IdleTTL,
		exempt:  make(map[string]struct{}, len(opts.Exempt)),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	if opts.RPS <= 0 {
		t.rps = rate.Inf
	}
	if t.burst <= 0 {
		t.burst = 1
	}
	if t.idle <= 0 {
		t.idle = defaultThrottleIdle
	}
	for _, p := range opts.Exempt {
		t.exempt[p] = struct{}{}
	}
	return t
}

// limiter returns the bucket for addr. Every defaultThrottleSweep lookups
// idle buckets are dropped, before addr is touched so a stale bucket for
// addr itself starts fresh.
func (t *Throttle) limiter(addr string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lookups++
	if t.lookups >= defaultThrottleSweep {
		t.lookups = 0
		for k, b := range t.buckets {
			if now.Sub(b.seen) >= t.idle {
				delete(t.buckets, k)
			}
		}
	}

	b, ok := t.buckets[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[addr] = b
	}
	b.seen = now
	return b.lim
}

// Len reports how many addresses currently hold a bucket.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// skipsThrottle reports whether ReplayGuard matched a stored post.
func skipsThrottle(c *gin.Context) bool {
	b, _ := c.Value(throttleBypassKey).(bool)
	return b
}

// Handler rejects requests beyond the address's bucket with 429. Retry-After
// holds the whole seconds until a token is available. Idempotent replays and
// exempt routes pass untouched.
func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := t.exempt[c.FullPath()]; ok || skipsThrottle(c) {
			c.Next()
			return
		}

		now := t.now()
		res := t.limiter(c.ClientIP(), now).ReserveN(now, 1)
		if res.OK() {
			wait := res.DelayFrom(now)
			if wait == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(retrySeconds(wait)))
		} else {
			c.Header("Retry-After", "1")
		}

		throttled.WithLabelValues(routeLabel(c)).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "too many requests",
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
