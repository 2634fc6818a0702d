// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements TrackVisit, which counts page views on the HTML
// routes. Tracking is best-effort: a failure is logged and the page response
// is left exactly as the handler produced it.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatboard/internal/services"
)

// DefaultTrackTimeout bounds a single visit write.
const DefaultTrackTimeout = 2 * time.Second

// VisitTracker records a visit of addr to rawPath.
type VisitTracker interface {
	Record(ctx context.Context, rawPath, addr string) services.TrackResult
}

// TrackVisit records the visit after the page handler ran, but only for
// successful responses so missing pages and errors are not counted. The
// write gets its own deadline and survives client disconnects.
func TrackVisit(t VisitTracker, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultTrackTimeout
	}
	return func(c *gin.Context) {
		c.Next()

		if t == nil || c.Writer.Status() >= 400 {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
		defer cancel()

		res := t.Record(ctx, c.Request.URL.Path, c.ClientIP())
		if res.Err != nil {
			LoggerFrom(c).Warn().
				Err(res.Err).
				Str("page", res.Page).
				Msg("visit tracking failed")
		}
	}
}
