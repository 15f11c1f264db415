package models

import (
	"time"
)

// User model
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index"`
	Email          string     `gorm:"size:255;not null;unique"`
	Nickname       string     `gorm:"size:255;not null"`
	HashedPassword []byte     `gorm:"not null"`
	Provider       string     `gorm:"size:32"` // e.g. "google", "guest"
	ProviderID     string     `gorm:"size:255"`
	// CharacterDescription biases the generated illustration's subject.
	CharacterDescription string       `gorm:"type:text;default:'Golden Hamster'"`
	Entries              []DiaryEntry `gorm:"foreignKey:UserID"`
	RoleID               *uint        `gorm:"index"`
	Role                 Role         `gorm:"foreignKey:RoleID;references:ID"`
}
