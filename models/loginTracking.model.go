package models

import (
	"time"

	"gorm.io/gorm"
)

type LoginTracking struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	IPAddress string `gorm:"not null"`
	Device    string
	Timestamp time.Time
}
