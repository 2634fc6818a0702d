// Package middleware contains the Gin middleware shared by the chat API and
// the tracked pages.
//
// Logging is split in three pieces that are installed in this order:
// RequestID, AccessLog, Recovery. AccessLog stores a request-scoped logger
// that handlers fetch with LoggerFrom.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	loggerKey       = "logger"
	requestIDHeader = "X-Request-ID"

	// maxQueryLog caps how much of the raw query is logged.
	maxQueryLog = 512
)

// RequestID reuses an inbound X-Request-ID or mints a UUID, then echoes it on
// the response so moderation rejections can be traced back to a log line.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// AccessLogOptions tunes AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are logged as "[REDACTED]" in addition to Authorization,
	// Cookie and Set-Cookie.
	MaskHeaders []string
	// LogHeaders includes the scrubbed request headers in each line.
	LogHeaders bool
	// SkipPaths are route templates that are never logged (e.g. /health).
	SkipPaths []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	ipv4RE  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrub masks identifiers that should not reach the logs. UUIDs go first so
// the loose phone pattern cannot eat their digit groups.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = ipv4RE.ReplaceAllString(s, "[REDACTED:ip]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// ClientTag returns a short stable tag for a client address. Access logs use
// it in place of the address, which is the poster's rate-limit identity.
func ClientTag(addr string) string {
	if addr == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(addr))
	return hex.EncodeToString(sum[:6])
}

// AccessLog emits one structured line per request with scrubbed query and
// headers. The client address is replaced by ClientTag. Replayed and
// throttled requests are flagged so retries are easy to tell apart from real
// posts. The level follows the outcome: error on 5xx or gin errors, warn on
// 4xx, info otherwise.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()

		rid, _ := c.Get(requestIDKey)
		lg := log.With().
			Str("request_id", asString(rid)).
			Str("client", ClientTag(c.ClientIP())).
			Logger()
		c.Set(loggerKey, &lg)

		c.Next()

		if _, ok := skip[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedPath
		}

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = lg.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}

		ev = ev.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", scrub(c.Request.URL.Path)).
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLog)).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if IsReplay(c) {
			ev = ev.Bool("replayed", true)
		}
		if status == http.StatusTooManyRequests {
			ev = ev.Str("retry_after", c.Writer.Header().Get("Retry-After"))
		}
		if opts.LogHeaders {
			hdr := make(map[string]string, len(c.Request.Header))
			for k, vv := range c.Request.Header {
				if _, ok := masked[strings.ToLower(k)]; ok {
					hdr[k] = "[REDACTED]"
					continue
				}
				hdr[k] = scrub(strings.Join(vv, ", "))
			}
			ev = ev.Interface("headers", hdr)
		}
		ev.Msg("http_request")
	}
}

// Recovery turns a panic into the standard JSON 500 body, keeping the
// request id so the stack trace in the log can be found.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", c.FullPath()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger AccessLog attached to c, or the global
// logger when none is present.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	lg := log.Logger
	return &lg
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes. A max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
