// Package handlers implements the chat board's JSON API and page handlers.
//
// Every error leaves as an ErrorResponse carrying a stable code; moderation
// rejections extend it with the verdict (see ModerationErrorResponse).
package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatboard/internal/http/middleware"
)

// Error codes. Clients branch on these, never on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
)

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"resource not found"`
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}

// fail aborts with an ErrorResponse. Server errors are logged; the message of
// a 5xx is replaced for the client so storage errors never leak.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("cause", msg).
			Msg("api error")
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: requestID(c), Code: code, Message: msg})
}

// Fail exposes fail to the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// retryAfter sets Retry-After to whole seconds, rounding up so a client that
// waits exactly that long is accepted.
func retryAfter(c *gin.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
}

// notModified sets etag and, when If-None-Match lists it (or is "*"), writes
// 304 and reports true.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, tag := range strings.Split(inm, ",") {
		if tag = strings.TrimSpace(tag); tag == etag || tag == "*" {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
