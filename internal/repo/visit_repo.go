// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the page visit counters.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chatboard/internal/domain"
)

// RecordVisit registers a visit of addr to page in one transaction. The
// visitor row is inserted with ON CONFLICT DO NOTHING; only a fresh row
// bumps page_views.total, while hits grows on every call. It reports
// whether this was addr's first visit to page.
func RecordVisit(ctx context.Context, db *gorm.DB, page, addr string, now time.Time) (bool, error) {
	now = now.UTC()
	var newVisitor bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&domain.PageVisitor{Page: page, IPAddress: addr, CreatedAt: now})
		if res.Error != nil {
			return fmt.Errorf("insert visitor: %w", res.Error)
		}
		newVisitor = res.RowsAffected > 0

		var inc int64
		if newVisitor {
			inc = 1
		}
		pv := &domain.PageView{Page: page, Total: inc, Hits: 1, UpdatedAt: now}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "page"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total":      gorm.Expr("page_views.total + ?", inc),
				"hits":       gorm.Expr("page_views.hits + 1"),
				"updated_at": now,
			}),
		}).Create(pv).Error
		if err != nil {
			return fmt.Errorf("upsert page view: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return newVisitor, nil
}

// ListPageViews returns every counter row ordered by page.
func ListPageViews(ctx context.Context, db *gorm.DB) ([]domain.PageView, error) {
	out := []domain.PageView{}
	err := db.WithContext(ctx).Order("page asc").Find(&out).Error
	return out, err
}

// ListUniqueVisitors counts visitor rows per page.
func ListUniqueVisitors(ctx context.Context, db *gorm.DB) ([]domain.PageVisitorCount, error) {
	out := []domain.PageVisitorCount{}
	err := db.WithContext(ctx).
		Model(&domain.PageVisitor{}).
		Select("page, COUNT(*) AS unique_visitors").
		Group("page").
		Order("page asc").
		Scan(&out).Error
	return out, err
}
