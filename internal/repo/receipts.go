package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/domain"
)

// ErrDuplicate is returned when a receipt for the same address, route and
// key already exists.
var ErrDuplicate = errors.New("duplicate")

// FindReceipt returns the live receipt for (addr, route, key) or ErrNotFound.
func FindReceipt(ctx context.Context, db *gorm.DB, addr, route, key string, now time.Time) (*domain.PostReceipt, error) {
	if route == "" || key == "" {
		return nil, ErrNotFound
	}
	var r domain.PostReceipt
	err := db.WithContext(ctx).
		Where("client_ip = ? AND route = ? AND key = ? AND expires_at > ?", addr, route, key, now).
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveReceipt stores r, filling CreatedAt when unset. An existing live
// receipt yields ErrDuplicate. An expired one that the purge has not reached
// yet is replaced.
func SaveReceipt(ctx context.Context, db *gorm.DB, r *domain.PostReceipt) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("client_ip = ? AND route = ? AND key = ? AND expires_at <= ?", r.ClientIP, r.Route, r.Key, r.CreatedAt).
			Delete(&domain.PostReceipt{})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Create(r).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

// PurgeReceipts deletes receipts that expired at or before now.
func PurgeReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.PostReceipt{})
	return res.RowsAffected, res.Error
}
