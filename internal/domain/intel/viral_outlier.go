package intel

import (
	"time"

	"github.com/google/uuid"
)

// ViralOutlier records a post whose engagement significantly exceeds its
// account's rolling median. Unique by (source_table, source_id); rows expire
// and are swept by the cleanup task.
type ViralOutlier struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SourceTable string `gorm:"type:text;not null;uniqueIndex:idx_viral_outlier_source,priority:1" json:"source_table"`
	SourceID    string `gorm:"type:text;not null;uniqueIndex:idx_viral_outlier_source,priority:2" json:"source_id"`

	Multiplier       int     `gorm:"not null;index" json:"multiplier"`
	MedianEngagement float64 `gorm:"type:double precision;not null" json:"median_engagement"`
	ActualEngagement int     `gorm:"not null" json:"actual_engagement"`

	AvailableCount int `gorm:"not null;default:0" json:"available_count"`
	SupportCount   int `gorm:"not null;default:0" json:"support_count"`

	Hook     string `gorm:"type:text;not null;default:''" json:"hook"`
	Platform string `gorm:"type:text;not null;index" json:"platform"`
	Username string `gorm:"type:text;not null;default:''" json:"username"`

	AnalyzedAt time.Time `gorm:"not null" json:"analyzed_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ViralOutlier) TableName() string { return "viral_outliers" }
