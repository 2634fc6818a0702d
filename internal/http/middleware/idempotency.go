package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key that makes a chat post
// safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	idemKeyKey        = "idempotency.key"
	replayKey         = "idempotency.replay"
	throttleBypassKey = "throttle.bypass"

	defaultIdemKeyLen = 200
)

var defaultIdemKeyRE = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// GetIdempotencyKey returns the key accepted by ReplayGuard, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(idemKeyKey).(string)
	return s, s != ""
}

// IsReplay reports whether ReplayGuard found a stored post for this key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(replayKey).(bool)
	return b
}

// ReplayOptions bounds the accepted key format. Zero values select a 200
// byte limit and a token charset.
type ReplayOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// ReplayLookup reports whether a still-valid post exists for (addr, route,
// key). Expiry is the lookup's concern.
type ReplayLookup func(ctx context.Context, addr, route, key string, now time.Time) (bool, error)

// ReplayGuard validates Idempotency-Key on POST requests and flags known
// replays. A flagged request skips the throttle; the chat handler then answers
// it from the stored post instead of submitting again. Safe methods ignore the
// header. A lookup failure is logged and treated as a miss.
func ReplayGuard(opts ReplayOptions, lookup ReplayLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemKeyRE
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(idemKeyKey, key)

		route := c.FullPath()
		if lookup == nil || route == "" {
			c.Next()
			return
		}
		found, err := lookup(c.Request.Context(), c.ClientIP(), route, key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if found {
			c.Set(replayKey, true)
			c.Set(throttleBypassKey, true)
		}
		c.Next()
	}
}
