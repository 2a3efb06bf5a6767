package model

import "time"

// User owns generation records
type User struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Username  string    `gorm:"size:50;not null;uniqueIndex"`
	Email     string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"precision:6;not null"`
}

func (User) TableName() string {
	return "users"
}
