package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FirstName string     `gorm:"not null"`
	LastName  string     `gorm:"not null"`
	Email     string     `gorm:"unique;not null"`
	Password  string     `gorm:"not null" json:"-"`
	IsAdmin   bool       `gorm:"default:false"`
	IsActive  bool       `gorm:"default:true"`
	LastLogin *time.Time `gorm:"default:NULL"`
}
