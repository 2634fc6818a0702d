// Chat HTTP handlers.
//
// This file exposes REST endpoints for the public chat board:
//   - POST   /chats   (submit; sanitized, rate limited, moderated)
//   - GET    /chats   (list recent messages, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatboard/internal/domain"
	"github.com/tbourn/go-chatboard/internal/http/middleware"
	"github.com/tbourn/go-chatboard/internal/moderation"
	"github.com/tbourn/go-chatboard/internal/services"
	"github.com/tbourn/go-chatboard/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService defines the chat board operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// Submit sanitizes, rate limits, moderates and stores a message posted
	// from addr. It returns the stored message and the remaining quota.
	Submit(ctx context.Context, rawMessage, rawUser any, addr string) (*domain.ChatMessage, int64, error)
	// List returns up to limit recent messages.
	List(ctx context.Context, limit int, newestFirst bool) ([]domain.ChatMessage, error)
	// Quota reports how many messages addr posted in the window and how many remain.
	Quota(ctx context.Context, addr string) (count, remaining int64, err error)
	// RetryAfter reports when addr may post again.
	RetryAfter(ctx context.Context, addr string) (time.Duration, error)
	// Stats returns the total message count and the newest created_at.
	Stats(ctx context.Context) (int64, *time.Time, error)
	// Replay returns the message a previous request with the same key created.
	Replay(ctx context.Context, addr, scope, key string) (*domain.ChatMessage, bool)
	// Remember binds an idempotency key to a created message.
	Remember(ctx context.Context, addr, scope, key, chatID string, status int) error
}

// VisitService exposes the page visit counters.
type VisitService interface {
	PageViews(ctx context.Context) ([]domain.PageView, error)
	UniqueVisitors(ctx context.Context) ([]domain.PageVisitorCount, error)
}

// StatsService computes the engagement summary.
type StatsService interface {
	Summary(ctx context.Context) (services.Summary, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chats, visit counters, stats and pages.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	chatSvc   ChatService
	visitSvc  VisitService
	statsSvc  StatsService
	publicDir string
}

// New constructs and returns a Handlers instance bound to the given services.
// publicDir is the directory the HTML pages are served from.
func New(chatSvc ChatService, visitSvc VisitService, statsSvc StatsService, publicDir string) *Handlers {
	return &Handlers{chatSvc: chatSvc, visitSvc: visitSvc, statsSvc: statsSvc, publicDir: publicDir}
}

//
// DTOs
//

// PostChatRequest is the JSON payload for submitting a chat message.
// Both fields are decoded loosely; non-string values are rejected as empty.
type PostChatRequest struct {
	Message any `json:"message" swaggertype:"string" example:"hello there"`
	UserID  any `json:"user_id" swaggertype:"string" example:"guest-42"`
}

// PostChatResponse is returned when a message has been stored.
type PostChatResponse struct {
	ID        string `json:"id" example:"vytxeTZskVKR7C7WgdSP3d"`
	Message   string `json:"message" example:"hello there"`
	Remaining int64  `json:"remaining" example:"2"`
}

// ModerationErrorResponse is the 403 body for a rejected message. It extends
// the standard envelope with the moderation verdict.
type ModerationErrorResponse struct {
	RequestID string              `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string              `json:"code" example:"forbidden"`
	Message   string              `json:"message" example:"message rejected by moderation"`
	Reason    string              `json:"reason" example:"contains blocked words"`
	Severity  moderation.Severity `json:"severity" swaggertype:"string" example:"high"`
	Method    moderation.Method   `json:"method" swaggertype:"string" example:"lexical-filter"`
	Detected  []string            `json:"detected,omitempty"`
}

//
// Handlers
//

// PostChat godoc
// @ID          postChat
// @Summary     Submit a chat message
// @Description Sanitizes, rate limits (per client address) and moderates a message before storing it.
// @Tags        Chats
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Replay-safe key"  example(3b1f8e2a-retry-1)
// @Param       body             body    handlers.PostChatRequest  true  "Chat payload"
//
// @Success     201  {object}  handlers.PostChatResponse
// @Header      201  {string}  Idempotency-Replayed  "true when the response is a replay"
// @Failure     400  {object}  handlers.ErrorResponse            "Bad request"
// @Failure     403  {object}  handlers.ModerationErrorResponse  "Rejected by moderation"
// @Failure     429  {object}  handlers.ErrorResponse            "Chat limit reached"
// @Header      429  {string}  Retry-After                       "Seconds until the next message is allowed"
// @Failure     500  {object}  handlers.ErrorResponse            "Internal error"
// @Router      /chats [post]
func (h *Handlers) PostChat(c *gin.Context) {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	var req PostChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey {
		if msg, found := h.chatSvc.Replay(ctx, ip, c.FullPath(), key); found {
			_, remaining, _ := h.chatSvc.Quota(ctx, ip)
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusCreated, PostChatResponse{ID: msg.ID, Message: msg.Message, Remaining: remaining})
			return
		}
	}

	msg, remaining, err := h.chatSvc.Submit(ctx, req.Message, req.UserID, ip)
	if err != nil {
		h.submitError(c, ip, err)
		return
	}

	if hasKey {
		if err := h.chatSvc.Remember(ctx, ip, c.FullPath(), key, msg.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}

	ok(c, http.StatusCreated, PostChatResponse{ID: msg.ID, Message: msg.Message, Remaining: remaining})
}

func (h *Handlers) submitError(c *gin.Context, ip string, err error) {
	var modErr *services.ModerationError
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
	case errors.Is(err, services.ErrEmptyUser):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
	case errors.Is(err, services.ErrRateLimited):
		if d, rerr := h.chatSvc.RetryAfter(c.Request.Context(), ip); rerr == nil {
			retryAfter(c, d)
		}
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "chat limit reached, try again later")
	case errors.As(err, &modErr):
		v := modErr.Verdict
		c.AbortWithStatusJSON(http.StatusForbidden, ModerationErrorResponse{
			RequestID: requestID(c),
			Code:      ErrCodeForbidden,
			Message:   "message rejected by moderation",
			Reason:    v.Reason,
			Severity:  v.Severity,
			Method:    v.Method,
			Detected:  v.Detected,
		})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
	}
}

// ListChats godoc
// @ID          listChats
// @Summary     List recent chat messages
// @Description Returns up to `limit` recent messages, oldest first unless `order=desc`. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"chats:3:1700000000:asc:0\")
// @Param       limit          query   int     false "Maximum messages"            minimum(1) maximum(100) default(100)
// @Param       order          query   string  false "asc or desc"                 Enums(asc, desc) default(asc)
//
// @Success     200  {array}  domain.ChatMessage
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	view := utils.ParseListQuery(c.Request.URL.Query())

	// The tag covers the board state and the requested view; it is skipped
	// when the stats query fails.
	if count, maxTS, err := h.chatSvc.Stats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		if notModified(c, fmt.Sprintf(`W/"chats:%d:%d:%s"`, count, ts, view)) {
			return
		}
	}

	items, err := h.chatSvc.List(ctx, view.Limit, view.Desc)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}
