package repo

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatboard/internal/domain"
)

// newTestDB opens a private in-memory database with only the given tables.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedPosts(t *testing.T, db *gorm.DB, posts ...domain.ChatMessage) {
	t.Helper()
	for i := range posts {
		p := posts[i]
		if p.ID == "" {
			p.ID = uuid.NewString()[:8]
		}
		if p.Message == "" {
			p.Message = "hello board"
		}
		if p.IPAddress == "" {
			p.IPAddress = "192.0.2.1"
		}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed post: %v", err)
		}
	}
}

func TestChatsStats(t *testing.T) {
	ctx := context.Background()

	t.Run("missing table", func(t *testing.T) {
		if _, _, err := ChatsStats(ctx, newTestDB(t)); err == nil {
			t.Fatalf("want error without a chats table")
		}
	})

	t.Run("empty board", func(t *testing.T) {
		n, latest, err := ChatsStats(ctx, newTestDB(t, &domain.ChatMessage{}))
		if err != nil || n != 0 || latest != nil {
			t.Fatalf("got (%d, %v, %v)", n, latest, err)
		}
	})

	t.Run("latest is the newest post, not the last inserted", func(t *testing.T) {
		db := newTestDB(t, &domain.ChatMessage{})
		newest := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
		seedPosts(t, db,
			domain.ChatMessage{UserID: "ann", CreatedAt: newest.Add(-48 * time.Hour)},
			domain.ChatMessage{UserID: "bob", CreatedAt: newest},
			domain.ChatMessage{UserID: "cy", CreatedAt: newest.Add(-time.Hour)},
		)
		n, latest, err := ChatsStats(ctx, db)
		if err != nil || n != 3 || latest == nil || !latest.Equal(newest) {
			t.Fatalf("got (%d, %v, %v)", n, latest, err)
		}
	})
}

func TestCountChatUsers_CountsNamesNotAddresses(t *testing.T) {
	db := newTestDB(t, &domain.ChatMessage{})
	now := time.Now().UTC()
	seedPosts(t, db,
		domain.ChatMessage{UserID: "ann", IPAddress: "192.0.2.1", CreatedAt: now},
		domain.ChatMessage{UserID: "ann", IPAddress: "192.0.2.2", CreatedAt: now},
		domain.ChatMessage{UserID: "bob", IPAddress: "192.0.2.1", CreatedAt: now},
	)
	if n, err := CountChatUsers(context.Background(), db); err != nil || n != 2 {
		t.Fatalf("users=%d err=%v", n, err)
	}
}

func TestPageTotals_AndSum(t *testing.T) {
	db := newTestDB(t, &domain.PageView{})
	ctx := context.Background()

	if sum, err := SumPageTotals(ctx, db); err != nil || sum != 0 {
		t.Fatalf("empty sum=%d err=%v", sum, err)
	}
	if got, err := PageTotals(ctx, db); err != nil || len(got) != 0 {
		t.Fatalf("no pages requested: %v err=%v", got, err)
	}

	rows := []domain.PageView{
		{Page: "/", Total: 7, Hits: 30},
		{Page: "/about", Total: 2, Hits: 2},
		{Page: "/chat", Total: 5, Hits: 11},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	// sums unique visitors, never hits
	if sum, err := SumPageTotals(ctx, db); err != nil || sum != 14 {
		t.Fatalf("sum=%d err=%v", sum, err)
	}
	got, err := PageTotals(ctx, db, "/", "/chat", "/never")
	if err != nil {
		t.Fatalf("PageTotals: %v", err)
	}
	want := map[string]int64{"/": 7, "/chat": 5, "/never": 0}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: got %d want %d", k, got[k], v)
		}
	}
}
