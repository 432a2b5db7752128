package social

import "time"

// UnifiedPost is a read-only row of the unified_posts view, which unions
// competitor_posts and hashtag_posts into one shape for the viral detector.
// Views stays nil for rows whose platform does not report view counts.
type UnifiedPost struct {
	SourceTable string    `gorm:"column:source_table" json:"source_table"`
	SourceID    string    `gorm:"column:source_id" json:"source_id"`
	Username    string    `gorm:"column:username" json:"username"`
	Platform    string    `gorm:"column:platform" json:"platform"`
	Content     string    `gorm:"column:content" json:"content"`
	PostedAt    time.Time `gorm:"column:posted_at" json:"posted_at"`
	Likes       int       `gorm:"column:likes" json:"likes"`
	Comments    int       `gorm:"column:comments" json:"comments"`
	Views       *int      `gorm:"column:views" json:"views,omitempty"`
}

func (UnifiedPost) TableName() string { return "unified_posts" }
