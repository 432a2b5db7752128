package social

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// HashtagPost is a post scraped from a platform hashtag page. The
// (platform, post_id) pair is the natural key; CaptionHash (sha256 of the
// caption) is the secondary dedupe signal for reposted content.
type HashtagPost struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	GroupID uuid.UUID `gorm:"type:uuid;not null;index" json:"group_id"`

	Platform string `gorm:"type:text;not null;uniqueIndex:idx_hashtag_post_platform_post,priority:1;index:idx_hashtag_post_platform_tag,priority:1" json:"platform"`
	PostID   string `gorm:"type:text;not null;uniqueIndex:idx_hashtag_post_platform_post,priority:2" json:"post_id"`
	Hashtag  string `gorm:"type:text;not null;index:idx_hashtag_post_platform_tag,priority:2" json:"hashtag"`

	Username    string `gorm:"type:text;not null;default:''" json:"username"`
	URL         string `gorm:"type:text;not null;default:''" json:"url"`
	Caption     string `gorm:"type:text;not null;default:''" json:"caption"`
	CaptionHash string `gorm:"type:text;not null;default:'';index" json:"caption_hash"`

	Likes    int  `gorm:"not null;default:0" json:"likes"`
	Comments int  `gorm:"not null;default:0" json:"comments"`
	Views    *int `gorm:"" json:"views,omitempty"`

	Hashtags datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"hashtags"`
	RawJSON  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"raw_json"`

	PostedAt  time.Time `gorm:"not null;index" json:"posted_at"`
	ScrapedAt time.Time `gorm:"not null" json:"scraped_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (HashtagPost) TableName() string { return "hashtag_posts" }
