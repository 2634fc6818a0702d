// Package domain defines the persistence models for chat messages and page
// visit tracking. These types are mapped with GORM and form the core data
// layer of the chat board.
package domain

import "time"

// MaxUserIDLen is the width of chats.user_id in runes. Longer names must be
// cut before they reach the store.
const MaxUserIDLen = 100

// ChatMessage is a single accepted post on the public chat board. Rows are
// only ever written after moderation allowed the text and the poster's
// address was within quota, so every stored message is publishable.
//
// Fields:
//   - ID: short, URL-safe identifier (shortuuid, unique).
//   - Message: sanitized text, at most the configured rune limit.
//   - UserID: sanitized display name supplied by the poster, at most
//     MaxUserIDLen runes.
//   - IPAddress: client address the post was attributed to; never serialized.
//   - CreatedAt: UTC insertion time; drives ordering and quota windows.
type ChatMessage struct {
	ID        string    `json:"id"         gorm:"type:varchar(32);primaryKey"`
	Message   string    `json:"message"    gorm:"type:text;not null"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(100);not null"`
	IPAddress string    `json:"-"          gorm:"type:varchar(64);not null;index:idx_chats_ip_created,priority:1"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index:idx_chats_ip_created,priority:2;index:idx_chats_created"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chats" }

// PageView holds the visit counters for one normalized page key.
//
// Total counts distinct visitors (first visit per address), Hits counts
// every tracked request.
type PageView struct {
	Page      string    `json:"page"  gorm:"type:varchar(255);primaryKey"`
	Total     int64     `json:"total" gorm:"not null;default:0"`
	Hits      int64     `json:"hits"  gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for PageView.
func (PageView) TableName() string { return "page_views" }

// PageVisitor records that an address has visited a page at least once.
// The composite primary key makes the first-visit insert idempotent.
type PageVisitor struct {
	Page      string    `json:"page"       gorm:"type:varchar(255);primaryKey"`
	IPAddress string    `json:"ip_address" gorm:"type:varchar(64);primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PageVisitor.
func (PageVisitor) TableName() string { return "page_visitors" }

// PageVisitorCount is the number of distinct addresses seen on a page.
type PageVisitorCount struct {
	Page           string `json:"page"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// PostReceipt remembers which chat a keyed POST created, so a retry with the
// same Idempotency-Key from the same address gets the original message back
// instead of posting twice. Receipts expire after a TTL.
type PostReceipt struct {
	ClientIP  string    `gorm:"type:varchar(64);primaryKey"`
	Route     string    `gorm:"type:varchar(128);primaryKey"`
	Key       string    `gorm:"type:varchar(200);primaryKey"`
	ChatID    string    `gorm:"type:varchar(32);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index:idx_receipts_expires"`
}

// TableName returns the database table name for PostReceipt.
func (PostReceipt) TableName() string { return "post_receipts" }

// Live reports whether the receipt can still be replayed at now.
func (r PostReceipt) Live(now time.Time) bool { return now.Before(r.ExpiresAt) }
