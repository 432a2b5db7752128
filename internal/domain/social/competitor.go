package social

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CompetitorProfile is a scraped social account another studio runs.
type CompetitorProfile struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Platform string `gorm:"type:text;not null;uniqueIndex:idx_competitor_platform_username,priority:1" json:"platform"`
	Username string `gorm:"type:text;not null;uniqueIndex:idx_competitor_platform_username,priority:2" json:"username"`

	DisplayName string `gorm:"type:text;not null;default:''" json:"display_name"`
	Followers   int    `gorm:"not null;default:0" json:"followers"`

	LastScrapedAt *time.Time `gorm:"" json:"last_scraped_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CompetitorProfile) TableName() string { return "competitor_profiles" }

// CompetitorPost is one post of a competitor profile.
type CompetitorPost struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CompetitorID uuid.UUID          `gorm:"type:uuid;not null;index" json:"competitor_id"`
	Competitor   *CompetitorProfile `gorm:"constraint:OnDelete:CASCADE;foreignKey:CompetitorID;references:ID" json:"competitor,omitempty"`

	Platform string `gorm:"type:text;not null;uniqueIndex:idx_competitor_post_platform_post,priority:1" json:"platform"`
	PostID   string `gorm:"type:text;not null;uniqueIndex:idx_competitor_post_platform_post,priority:2" json:"post_id"`

	Username string `gorm:"type:text;not null;default:''" json:"username"`
	Content  string `gorm:"type:text;not null;default:''" json:"content"`

	Likes    int  `gorm:"not null;default:0" json:"likes"`
	Comments int  `gorm:"not null;default:0" json:"comments"`
	Views    *int `gorm:"" json:"views,omitempty"`

	Hashtags datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"hashtags"`

	PostedAt time.Time `gorm:"not null;index" json:"posted_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CompetitorPost) TableName() string { return "competitor_posts" }

// UserCompetitor links a tenant to a competitor profile it tracks.
type UserCompetitor struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	OwnerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_competitor_key,priority:1" json:"owner_id"`
	GroupID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_competitor_key,priority:2" json:"group_id"`

	CompetitorID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_user_competitor_key,priority:3" json:"competitor_id"`
	Competitor   *CompetitorProfile `gorm:"constraint:OnDelete:CASCADE;foreignKey:CompetitorID;references:ID" json:"competitor,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (UserCompetitor) TableName() string { return "user_competitors" }
