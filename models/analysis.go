package models

import (
	"time"

	"github.com/lib/pq"
)

// Pipeline states recorded on an Analysis row. The status column is the
// authoritative record of which pipeline steps completed, so a regenerate
// or image retry can tell a real analysis from a fallback one.
const (
	AnalysisStatusFallback    = "fallback"     // text-analysis failed, sentinel values stored
	AnalysisStatusAnalyzed    = "analyzed"     // text step done, image step not yet run
	AnalysisStatusImageFailed = "image_failed" // image generation or upload failed
	AnalysisStatusComplete    = "complete"     // image stored, url set
)

// Analysis is the derived mood record for one diary entry (one-to-one).
type Analysis struct {
	ID                 uint `gorm:"primaryKey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DiaryEntryID       uint           `gorm:"uniqueIndex;not null"`
	RepresentativeMood string         `gorm:"size:255"`
	MoodScore          int            `gorm:"not null"`
	Keywords           pq.StringArray `gorm:"type:text[]"`
	ImagePrompt        string         `gorm:"type:text"`
	// ImageURL is set only after a successful generation + upload.
	ImageURL *string `gorm:"type:text"`
	Status   string  `gorm:"size:32;not null;default:'analyzed';index"`
}
