// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) and the engagement summary.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/domain"
)

// ChatsStats returns the number of stored chat messages and the greatest
// CreatedAt among them. When the board is empty, latest is nil.
func ChatsStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatMessage{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.ChatMessage{}).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// CountChatUsers returns the number of distinct user_id values on the board.
func CountChatUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}

// SumPageTotals returns the sum of page_views.total across all pages.
func SumPageTotals(ctx context.Context, db *gorm.DB) (int64, error) {
	var row struct {
		TotalSum int64
	}
	err := db.WithContext(ctx).
		Model(&domain.PageView{}).
		Select("COALESCE(SUM(total), 0) AS total_sum").
		Scan(&row).Error
	return row.TotalSum, err
}

// PageTotals returns page_views.total for each requested page. Pages with no
// row map to 0.
func PageTotals(ctx context.Context, db *gorm.DB, pages ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(pages))
	for _, p := range pages {
		out[p] = 0
	}
	if len(pages) == 0 {
		return out, nil
	}
	var rows []domain.PageView
	if err := db.WithContext(ctx).Where("page IN ?", pages).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Page] = r.Total
	}
	return out, nil
}
