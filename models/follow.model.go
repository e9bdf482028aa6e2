package models

import (
	"time"
)

// Follow relates one user to one stock. A user can follow a stock at most
// once. Rows are removed outright on unfollow, so no soft-delete column: a
// tombstone would keep occupying the unique (user, stock) slot.
type Follow struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time
	UserID    uint  `gorm:"uniqueIndex:idx_user_stock;not null"`
	User      User  `gorm:"constraint:OnDelete:CASCADE"`
	StockID   uint  `gorm:"uniqueIndex:idx_user_stock;not null"`
	Stock     Stock `gorm:"constraint:OnDelete:CASCADE"`
}
