package listening

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Item is a normalized reddit post. The (platform, external_id) pair is the
// natural key; refreshed fetches only touch the volatile columns.
type Item struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SourceID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_id"`
	Source   *Source   `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`

	Platform   string `gorm:"type:text;not null;default:'reddit';uniqueIndex:idx_reddit_item_platform_external,priority:1" json:"platform"`
	ExternalID string `gorm:"type:text;not null;uniqueIndex:idx_reddit_item_platform_external,priority:2" json:"external_id"`

	Title     string `gorm:"type:text;not null;default:''" json:"title"`
	Body      string `gorm:"type:text;not null;default:''" json:"body"`
	Author    string `gorm:"type:text;not null;default:''" json:"author"`
	Subreddit string `gorm:"type:text;not null;default:'';index" json:"subreddit"`
	Flair     string `gorm:"type:text;not null;default:''" json:"flair"`
	URL       string `gorm:"type:text;not null;default:''" json:"url"`
	Permalink string `gorm:"type:text;not null;default:''" json:"permalink"`

	Score       int  `gorm:"not null;default:0" json:"score"`
	NumComments int  `gorm:"not null;default:0" json:"num_comments"`
	NSFW        bool `gorm:"not null;default:false" json:"nsfw"`
	Removed     bool `gorm:"not null;default:false" json:"removed"`
	Deleted     bool `gorm:"not null;default:false" json:"deleted"`

	QualityScore float64 `gorm:"type:double precision;not null;default:0;index" json:"quality_score"`

	CreatedUTC time.Time `gorm:"not null;index" json:"created_utc"`
	FetchedAt  time.Time `gorm:"not null" json:"fetched_at"`

	RawJSON datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"raw_json"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Item) TableName() string { return "reddit_items" }
