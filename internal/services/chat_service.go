// Package services – ChatService
//
// This file implements ChatService, which owns the chat submission flow:
// sanitize, check the per-address quota, moderate, then append. The quota
// check runs before moderation so rejected requests never spend classifier
// budget; the final insert re-checks the quota inside a transaction.
//
// Service-level errors (ErrEmptyMessage, ErrRateLimited, *ModerationError)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/domain"
	"github.com/tbourn/go-chatboard/internal/moderation"
	"github.com/tbourn/go-chatboard/internal/repo"
	"github.com/tbourn/go-chatboard/internal/sanitize"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied by NewChatService.
const (
	DefaultChatLimit     = 3
	DefaultChatWindow    = 24 * time.Hour
	DefaultUserMaxLen    = domain.MaxUserIDLen
	DefaultChatListLimit = 100
)

// ChatRepo defines the repository contract required by ChatService.
type ChatRepo interface {
	// CreateChatWithinQuota appends a message if the address is under quota
	// and returns the count including the new row.
	CreateChatWithinQuota(ctx context.Context, db *gorm.DB, in repo.NewChat) (*domain.ChatMessage, int64, error)

	// ListRecentChats returns the newest limit messages.
	ListRecentChats(ctx context.Context, db *gorm.DB, limit int, newestFirst bool) ([]domain.ChatMessage, error)

	// CountChatsSince counts messages from addr newer than since.
	CountChatsSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (int64, error)

	// OldestChatSince returns the oldest message time from addr newer than since.
	OldestChatSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (*time.Time, error)

	// ChatsStats returns the board size and latest message time.
	ChatsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// Moderator decides whether a sanitized message may be published.
type Moderator interface {
	Moderate(ctx context.Context, text string) moderation.Verdict
}

// ChatService coordinates submission and listing of chat messages.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the chat repository used by this service.
	Repo ChatRepo
	// Moderator screens message text before it is stored.
	Moderator Moderator

	// Limit is the number of messages an address may post per Window.
	Limit  int64
	Window time.Duration
	// MaxLen caps message bodies by rune length.
	MaxLen int
	// UserMaxLen caps the author identity by rune length. Values outside
	// (0, domain.MaxUserIDLen] use the column width.
	UserMaxLen int
	// ListLimit caps List results.
	ListLimit int
	// IdempotencyTTL is how long a remembered POST can be replayed.
	IdempotencyTTL time.Duration

	// Now is the clock; tests override it.
	Now func() time.Time
}

// NewChatService constructs a ChatService with the board's default limits.
func NewChatService(db *gorm.DB, r ChatRepo, m Moderator) *ChatService {
	return &ChatService{
		DB:         db,
		Repo:       r,
		Moderator:  m,
		Limit:      DefaultChatLimit,
		Window:     DefaultChatWindow,
		MaxLen:     sanitize.MaxMessageRunes,
		UserMaxLen: DefaultUserMaxLen,
		ListLimit:  DefaultChatListLimit,
		Now:        time.Now,

		IdempotencyTTL: DefaultIdempotencyTTL,
	}
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Submit sanitizes and validates the raw payload fields, enforces the
// per-address quota, moderates the text and stores it. It returns the stored
// message and the remaining quota for addr.
func (s *ChatService) Submit(ctx context.Context, rawMessage, rawUser any, addr string) (*domain.ChatMessage, int64, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("client.address", addr)),
	)
	defer span.End()

	msg := sanitize.Value(rawMessage, s.MaxLen)
	if msg == "" {
		chatSubmissions.WithLabelValues("invalid").Inc()
		return nil, 0, ErrEmptyMessage
	}
	userMax := s.UserMaxLen
	if userMax <= 0 || userMax > domain.MaxUserIDLen {
		userMax = domain.MaxUserIDLen
	}
	user := sanitize.Value(rawUser, userMax)
	if user == "" {
		chatSubmissions.WithLabelValues("invalid").Inc()
		return nil, 0, ErrEmptyUser
	}

	now := s.now()
	n, err := s.Repo.CountChatsSince(ctx, s.DB, addr, now.Add(-s.Window))
	if err != nil {
		return nil, 0, err
	}
	if n >= s.Limit {
		chatSubmissions.WithLabelValues("rate_limited").Inc()
		return nil, 0, ErrRateLimited
	}

	if s.Moderator != nil {
		v := s.Moderator.Moderate(ctx, msg)
		span.SetAttributes(attribute.String("moderation.method", string(v.Method)))
		if !v.Allowed {
			chatSubmissions.WithLabelValues("blocked").Inc()
			return nil, 0, &ModerationError{Verdict: v}
		}
	}

	c, count, err := s.Repo.CreateChatWithinQuota(ctx, s.DB, repo.NewChat{
		Message:   msg,
		UserID:    user,
		IPAddress: addr,
		Limit:     s.Limit,
		Window:    s.Window,
		Now:       now,
	})
	if errors.Is(err, repo.ErrQuotaExceeded) {
		chatSubmissions.WithLabelValues("rate_limited").Inc()
		return nil, 0, ErrRateLimited
	}
	if err != nil {
		return nil, 0, err
	}
	chatSubmissions.WithLabelValues("accepted").Inc()
	return c, s.remaining(count), nil
}

// List returns up to limit recent messages. A limit outside (0, ListLimit]
// falls back to ListLimit.
func (s *ChatService) List(ctx context.Context, limit int, newestFirst bool) ([]domain.ChatMessage, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.Bool("newest_first", newestFirst),
		),
	)
	defer span.End()

	max := s.ListLimit
	if max <= 0 {
		max = DefaultChatListLimit
	}
	if limit <= 0 || limit > max {
		limit = max
	}
	items, err := s.Repo.ListRecentChats(ctx, s.DB, limit, newestFirst)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.ChatMessage{}
	}
	return items, nil
}

// Quota returns how many messages addr posted in the current window and how
// many it may still post.
func (s *ChatService) Quota(ctx context.Context, addr string) (count, remaining int64, err error) {
	n, err := s.Repo.CountChatsSince(ctx, s.DB, addr, s.now().Add(-s.Window))
	if err != nil {
		return 0, 0, err
	}
	return n, s.remaining(n), nil
}

// RetryAfter returns how long addr must wait until its oldest message in the
// window expires. It never returns less than one second.
func (s *ChatService) RetryAfter(ctx context.Context, addr string) (time.Duration, error) {
	now := s.now()
	oldest, err := s.Repo.OldestChatSince(ctx, s.DB, addr, now.Add(-s.Window))
	if err != nil {
		return 0, err
	}
	if oldest == nil {
		return time.Second, nil
	}
	wait := oldest.Add(s.Window).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait.Round(time.Second), nil
}

// Stats returns the board size and latest message time for ETag generation.
func (s *ChatService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return s.Repo.ChatsStats(ctx, s.DB)
}

func (s *ChatService) remaining(count int64) int64 {
	if r := s.Limit - count; r > 0 {
		return r
	}
	return 0
}

// DefaultIdempotencyTTL is how long a remembered POST can be replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// Replay returns the message previously created by (addr, scope, key), if
// the record is still valid. Lookup failures count as a miss.
func (s *ChatService) Replay(ctx context.Context, addr, scope, key string) (*domain.ChatMessage, bool) {
	if s.DB == nil || key == "" {
		return nil, false
	}
	rec, err := repo.FindReceipt(ctx, s.DB, addr, scope, key, s.now())
	if err != nil {
		return nil, false
	}
	c, err := repo.GetChat(ctx, s.DB, rec.ChatID)
	if err != nil {
		return nil, false
	}
	return c, true
}

// Remember records that (addr, scope, key) produced chatID. It is best
// effort; a concurrent duplicate is not an error.
func (s *ChatService) Remember(ctx context.Context, addr, scope, key, chatID string, status int) error {
	if s.DB == nil || key == "" {
		return nil
	}
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	now := s.now()
	err := repo.SaveReceipt(ctx, s.DB, &domain.PostReceipt{
		ClientIP:  addr,
		Route:     scope,
		Key:       key,
		ChatID:    chatID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
