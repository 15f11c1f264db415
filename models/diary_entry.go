package models

import "time"

// DiaryEntry is one user's mood-journal text for a specific date.
// Content is immutable after creation; there is no edit endpoint.
type DiaryEntry struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint      `gorm:"index;not null"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	LogDate   time.Time `gorm:"type:date;not null;index"`
	Content   string    `gorm:"type:text;not null"`
	// Analysis is the 0-or-1 derived record for this entry.
	Analysis *Analysis `gorm:"foreignKey:DiaryEntryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
