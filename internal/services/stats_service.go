package services

import (
	"context"
	"math"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/repo"

	"go.opentelemetry.io/otel"
)

// Page keys reported individually in the engagement summary.
const (
	PageHome    = "/"
	PageAbout   = "/about"
	PageContact = "/contact"
)

// Summary is the engagement overview shown on the about page.
type Summary struct {
	TotalViews       int64 `json:"total_views"`
	HomeViews        int64 `json:"home_views"`
	AboutViews       int64 `json:"about_views"`
	ContactViews     int64 `json:"contact_views"`
	TotalChats       int64 `json:"total_chats"`
	UniqueChatUsers  int64 `json:"unique_chat_users"`
	ChatUsersPercent int   `json:"chat_users_percent"`
}

// StatsService aggregates visit and chat counters.
type StatsService struct {
	DB *gorm.DB
}

// Summary collects the engagement overview.
func (s *StatsService) Summary(ctx context.Context) (Summary, error) {
	ctx, span := otel.Tracer("services/StatsService").Start(ctx, "Summary")
	defer span.End()

	var out Summary
	total, err := repo.SumPageTotals(ctx, s.DB)
	if err != nil {
		return out, err
	}
	pages, err := repo.PageTotals(ctx, s.DB, PageHome, PageAbout, PageContact)
	if err != nil {
		return out, err
	}
	chats, _, err := repo.ChatsStats(ctx, s.DB)
	if err != nil {
		return out, err
	}
	users, err := repo.CountChatUsers(ctx, s.DB)
	if err != nil {
		return out, err
	}

	out = Summary{
		TotalViews:      total,
		HomeViews:       pages[PageHome],
		AboutViews:      pages[PageAbout],
		ContactViews:    pages[PageContact],
		TotalChats:      chats,
		UniqueChatUsers: users,
	}
	out.ChatUsersPercent = chatUsersPercent(users, out.HomeViews)
	return out, nil
}

// chatUsersPercent is round(users/homeViews*100) clamped to [0, 100].
func chatUsersPercent(users, homeViews int64) int {
	if homeViews <= 0 || users <= 0 {
		return 0
	}
	p := int(math.Round(float64(users) / float64(homeViews) * 100))
	if p > 100 {
		return 100
	}
	return p
}
