package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StockPrice is one daily OHLCV observation for a stock. Rows are written
// only by the reconciliation engine and never mutated afterwards.
type StockPrice struct {
	gorm.Model
	StockID uint           `gorm:"index;uniqueIndex:idx_stock_recorded_date;not null"`
	Stock   Stock          `gorm:"constraint:OnDelete:CASCADE"`
	// At most one row per (stock, recorded_date); the unique index is the
	// storage-level backstop against concurrent reconciliations.
	RecordedDate datatypes.Date `gorm:"type:date;uniqueIndex:idx_stock_recorded_date;not null"`
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
}
