package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatboard/internal/domain"
	"github.com/tbourn/go-chatboard/internal/moderation"
	"github.com/tbourn/go-chatboard/internal/repo"
)

// ----- Helpers -----

func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:services_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// repoShim adapts the repo free functions to ChatRepo.
type repoShim struct{}

func (repoShim) CreateChatWithinQuota(ctx context.Context, db *gorm.DB, in repo.NewChat) (*domain.ChatMessage, int64, error) {
	return repo.CreateChatWithinQuota(ctx, db, in)
}
func (repoShim) ListRecentChats(ctx context.Context, db *gorm.DB, limit int, newestFirst bool) ([]domain.ChatMessage, error) {
	return repo.ListRecentChats(ctx, db, limit, newestFirst)
}
func (repoShim) CountChatsSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (int64, error) {
	return repo.CountChatsSince(ctx, db, addr, since)
}
func (repoShim) OldestChatSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (*time.Time, error) {
	return repo.OldestChatSince(ctx, db, addr, since)
}
func (repoShim) ChatsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.ChatsStats(ctx, db)
}

// stubModerator returns a fixed verdict and counts calls.
type stubModerator struct {
	verdict moderation.Verdict
	calls   int
}

func (m *stubModerator) Moderate(context.Context, string) moderation.Verdict {
	m.calls++
	return m.verdict
}

func allowAll() *stubModerator {
	return &stubModerator{verdict: moderation.Verdict{Allowed: true, Method: moderation.MethodBothPassed, Severity: moderation.SeverityLow}}
}

// fakeChatRepo scripts repository answers.
type fakeChatRepo struct {
	count     int64
	countErr  error
	createErr error
	created   []repo.NewChat
	listLimit int
	listDesc  bool
	oldest    *time.Time
}

func (r *fakeChatRepo) CreateChatWithinQuota(_ context.Context, _ *gorm.DB, in repo.NewChat) (*domain.ChatMessage, int64, error) {
	if r.createErr != nil {
		return nil, 0, r.createErr
	}
	r.created = append(r.created, in)
	r.count++
	return &domain.ChatMessage{ID: "id", Message: in.Message, UserID: in.UserID, IPAddress: in.IPAddress, CreatedAt: in.Now}, r.count, nil
}
func (r *fakeChatRepo) ListRecentChats(_ context.Context, _ *gorm.DB, limit int, newestFirst bool) ([]domain.ChatMessage, error) {
	r.listLimit, r.listDesc = limit, newestFirst
	return nil, nil
}
func (r *fakeChatRepo) CountChatsSince(context.Context, *gorm.DB, string, time.Time) (int64, error) {
	return r.count, r.countErr
}
func (r *fakeChatRepo) OldestChatSince(context.Context, *gorm.DB, string, time.Time) (*time.Time, error) {
	return r.oldest, nil
}
func (r *fakeChatRepo) ChatsStats(context.Context, *gorm.DB) (int64, *time.Time, error) {
	return r.count, nil, nil
}

// ----- Tests -----

func TestNewChatService_Defaults(t *testing.T) {
	s := NewChatService(nil, &fakeChatRepo{}, nil)
	if s.Limit != 3 || s.Window != 24*time.Hour || s.MaxLen != 500 || s.UserMaxLen != 100 || s.ListLimit != 100 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		user any
		want error
	}{
		{"missing message", nil, "u1", ErrEmptyMessage},
		{"blank message", "   ", "u1", ErrEmptyMessage},
		{"only markup", `<"'>`, "u1", ErrEmptyMessage},
		{"non-string message", 42, "u1", ErrEmptyMessage},
		{"missing user", "hi", nil, ErrEmptyUser},
		{"blank user", "hi", "  ", ErrEmptyUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeChatRepo{}
			mod := allowAll()
			s := NewChatService(nil, r, mod)
			_, _, err := s.Submit(context.Background(), tt.msg, tt.user, "1.1.1.1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(r.created) != 0 || mod.calls != 0 {
				t.Fatalf("validation failure must have no side effects")
			}
		})
	}
}

func TestSubmit_SanitizesBeforeStoring(t *testing.T) {
	r := &fakeChatRepo{}
	s := NewChatService(nil, r, allowAll())
	c, remaining, err := s.Submit(context.Background(), `  <b>hi</b> javascript:x  `, "<u1>", "1.1.1.1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.Message != "bhi/b x" || c.UserID != "u1" {
		t.Fatalf("unexpected sanitized values: %q / %q", c.Message, c.UserID)
	}
	if remaining != 2 {
		t.Fatalf("expected remaining 2, got %d", remaining)
	}
}

func TestSubmit_RateLimitCheckedBeforeModeration(t *testing.T) {
	r := &fakeChatRepo{count: 3}
	mod := allowAll()
	s := NewChatService(nil, r, mod)
	_, _, err := s.Submit(context.Background(), "hello", "u1", "1.1.1.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if mod.calls != 0 || len(r.created) != 0 {
		t.Fatalf("rate-limited request must not reach moderation or storage")
	}
}

func TestSubmit_ModerationRejection(t *testing.T) {
	r := &fakeChatRepo{}
	mod := &stubModerator{verdict: moderation.Verdict{Allowed: false, Method: moderation.MethodLexical, Severity: moderation.SeverityHigh, Reason: "bad", Detected: []string{"x"}}}
	s := NewChatService(nil, r, mod)

	_, _, err := s.Submit(context.Background(), "x", "u1", "1.1.1.1")
	var me *ModerationError
	if !errors.As(err, &me) {
		t.Fatalf("expected *ModerationError, got %v", err)
	}
	if me.Verdict.Method != moderation.MethodLexical || me.Verdict.Severity != moderation.SeverityHigh {
		t.Fatalf("unexpected verdict: %+v", me.Verdict)
	}
	if len(r.created) != 0 {
		t.Fatalf("blocked message must not be stored")
	}
}

func TestSubmit_QuotaRaceMapsToRateLimited(t *testing.T) {
	r := &fakeChatRepo{createErr: repo.ErrQuotaExceeded}
	s := NewChatService(nil, r, allowAll())
	if _, _, err := s.Submit(context.Background(), "hi", "u1", "a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSubmit_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	s := NewChatService(nil, &fakeChatRepo{countErr: boom}, allowAll())
	if _, _, err := s.Submit(context.Background(), "hi", "u1", "a"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	r := &fakeChatRepo{}
	s := NewChatService(nil, r, nil)

	items, err := s.List(context.Background(), 0, false)
	if err != nil || items == nil {
		t.Fatalf("List: %v %v", items, err)
	}
	if r.listLimit != 100 || r.listDesc {
		t.Fatalf("expected default limit 100 asc, got %d desc=%v", r.listLimit, r.listDesc)
	}
	_, _ = s.List(context.Background(), 1000, true)
	if r.listLimit != 100 || !r.listDesc {
		t.Fatalf("expected clamp to 100 desc, got %d desc=%v", r.listLimit, r.listDesc)
	}
	_, _ = s.List(context.Background(), 7, false)
	if r.listLimit != 7 {
		t.Fatalf("expected 7, got %d", r.listLimit)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-23 * time.Hour)
	s := NewChatService(nil, &fakeChatRepo{oldest: &oldest}, nil)
	s.Now = func() time.Time { return now }

	d, err := s.RetryAfter(context.Background(), "a")
	if err != nil || d != time.Hour {
		t.Fatalf("expected 1h, got %s err=%v", d, err)
	}

	s.Repo = &fakeChatRepo{}
	if d, _ := s.RetryAfter(context.Background(), "a"); d != time.Second {
		t.Fatalf("expected 1s floor, got %s", d)
	}
}

func TestSubmit_FourthMessageRejected_WithStore(t *testing.T) {
	db := newServicesDB(t)
	mod := allowAll()
	s := NewChatService(db, repoShim{}, mod)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		c, remaining, err := s.Submit(ctx, "hello world", "u1", "10.0.0.1")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if remaining != int64(3-i) {
			t.Fatalf("submit %d: remaining=%d", i, remaining)
		}
		if c.ID == "" || c.UserID != "u1" {
			t.Fatalf("unexpected row: %+v", c)
		}
	}

	callsBefore := mod.calls
	if _, _, err := s.Submit(ctx, "hello world", "u1", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected 4th submission rejected, got %v", err)
	}
	if mod.calls != callsBefore {
		t.Fatalf("moderation ran for a rate-limited request")
	}

	var total int64
	db.Model(&domain.ChatMessage{}).Count(&total)
	if total != 3 {
		t.Fatalf("expected 3 stored rows, got %d", total)
	}

	_, remaining, err := s.Submit(ctx, "hello world", "u2", "10.0.0.2")
	if err != nil || remaining != 2 {
		t.Fatalf("other address: remaining=%d err=%v", remaining, err)
	}

	count, rem, err := s.Quota(ctx, "10.0.0.1")
	if err != nil || count != 3 || rem != 0 {
		t.Fatalf("Quota: count=%d remaining=%d err=%v", count, rem, err)
	}

	d, err := s.RetryAfter(ctx, "10.0.0.1")
	if err != nil || d <= 23*time.Hour || d > 24*time.Hour {
		t.Fatalf("RetryAfter out of range: %s err=%v", d, err)
	}
}

func TestReplayAndRemember(t *testing.T) {
	db := newServicesDB(t)
	s := NewChatService(db, repoShim{}, allowAll())
	ctx := context.Background()

	if _, ok := s.Replay(ctx, "a", "/api/chats", "k1"); ok {
		t.Fatalf("expected miss before Remember")
	}

	c, _, err := s.Submit(ctx, "hello", "u1", "a")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Remember(ctx, "a", "/api/chats", "k1", c.ID, 201); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := s.Remember(ctx, "a", "/api/chats", "k1", c.ID, 201); err != nil {
		t.Fatalf("duplicate Remember should be ignored: %v", err)
	}

	got, ok := s.Replay(ctx, "a", "/api/chats", "k1")
	if !ok || got.ID != c.ID {
		t.Fatalf("expected replay of %s, got %+v ok=%v", c.ID, got, ok)
	}
	if _, ok := s.Replay(ctx, "b", "/api/chats", "k1"); ok {
		t.Fatalf("replay must be scoped to the address")
	}

	s.DB = nil
	if _, ok := s.Replay(ctx, "a", "/api/chats", "k1"); ok {
		t.Fatalf("expected miss without DB")
	}
}

func TestSubmit_LongestUserIDIsStored(t *testing.T) {
	db := newServicesDB(t)
	s := NewChatService(db, repoShim{}, allowAll())
	s.UserMaxLen = 500 // wider than the column; clamped
	ctx := context.Background()

	name := strings.Repeat("é", domain.MaxUserIDLen+20)
	c, _, err := s.Submit(ctx, "hello", name, "10.0.0.9")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := utf8.RuneCountInString(c.UserID); n != domain.MaxUserIDLen {
		t.Fatalf("stored user id has %d runes, want %d", n, domain.MaxUserIDLen)
	}
	got, err := repo.GetChat(ctx, db, c.ID)
	if err != nil || got.UserID != c.UserID {
		t.Fatalf("readback: %+v err=%v", got, err)
	}
}
