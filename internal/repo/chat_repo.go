// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the public
// chat board.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: persistence and query
// composition only. The one exception is CreateChatWithinQuota, which owns
// the check-then-insert transaction so the per-address cap holds under
// concurrent posts.
//
// Error semantics:
//   - ErrQuotaExceeded when the address already has the maximum number of
//     messages inside the window.
//   - Raw (or wrapped) gorm errors on DB failures.
//
// Functions:
//
//   - CreateChatWithinQuota(ctx, db, in) -> *domain.ChatMessage, count, error
//   - ListRecentChats(ctx, db, limit, newestFirst) -> []domain.ChatMessage, error
//   - CountChatsSince(ctx, db, addr, since) -> int64, error
//   - OldestChatSince(ctx, db, addr, since) -> *time.Time, error
//   - GetChat(ctx, db, id) -> *domain.ChatMessage, error
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrQuotaExceeded is returned when the address has used its window quota.
var ErrQuotaExceeded = errors.New("chat quota exceeded")

// maxIDAttempts bounds ID regeneration after a primary key collision.
const maxIDAttempts = 3

// NewChat describes a message to persist.
type NewChat struct {
	Message   string
	UserID    string
	IPAddress string
	Limit     int64
	Window    time.Duration
	Now       time.Time
}

// CreateChatWithinQuota appends a chat message only if the address has fewer
// than in.Limit messages newer than in.Now-in.Window. On Postgres the
// address is serialized with a transaction-scoped advisory lock; on SQLite
// the database write lock does the same job. It returns the stored row and
// the address's count including the new row.
func CreateChatWithinQuota(ctx context.Context, db *gorm.DB, in NewChat) (*domain.ChatMessage, int64, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	since := now.Add(-in.Window)

	var (
		out   *domain.ChatMessage
		count int64
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if isPostgres(tx) {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", in.IPAddress).Error; err != nil {
				return fmt.Errorf("lock address: %w", err)
			}
		}

		n, err := CountChatsSince(ctx, tx, in.IPAddress, since)
		if err != nil {
			return err
		}
		if n >= in.Limit {
			return ErrQuotaExceeded
		}

		c := &domain.ChatMessage{
			Message:   in.Message,
			UserID:    in.UserID,
			IPAddress: in.IPAddress,
			CreatedAt: now,
		}
		for attempt := 1; ; attempt++ {
			c.ID = shortuuid.New()
			if err := tx.SavePoint("chat_insert").Error; err != nil {
				return err
			}
			err := tx.Create(c).Error
			if err == nil {
				break
			}
			if !isUniqueViolation(err) || attempt >= maxIDAttempts {
				return fmt.Errorf("insert chat: %w", err)
			}
			if err := tx.RollbackTo("chat_insert").Error; err != nil {
				return err
			}
		}
		out, count = c, n+1
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

// ListRecentChats returns the newest limit messages. With newestFirst false
// the slice is reversed to read oldest-first.
func ListRecentChats(ctx context.Context, db *gorm.DB, limit int, newestFirst bool) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if !newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// CountChatsSince returns how many messages addr posted strictly after since.
func CountChatsSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("ip_address = ? AND created_at > ?", addr, since.UTC()).
		Count(&total).Error
	return total, err
}

// OldestChatSince returns the creation time of addr's oldest message newer
// than since, or nil when there is none.
func OldestChatSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (*time.Time, error) {
	var rows []domain.ChatMessage
	err := db.WithContext(ctx).
		Select("created_at").
		Where("ip_address = ? AND created_at > ?", addr, since.UTC()).
		Order("created_at asc").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	ts := rows[0].CreatedAt
	return &ts, nil
}

// GetChat fetches a single message by ID, or ErrNotFound.
func GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var c domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
