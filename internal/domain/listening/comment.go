package listening

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Comment is a normalized top comment of a high-quality item.
type Comment struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ItemID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reddit_comment_item_external,priority:1" json:"item_id"`
	Item   *Item     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ItemID;references:ID" json:"item,omitempty"`

	ExternalID       string `gorm:"type:text;not null;uniqueIndex:idx_reddit_comment_item_external,priority:2" json:"external_id"`
	ParentExternalID string `gorm:"type:text;not null;default:''" json:"parent_external_id"`

	Author      string `gorm:"type:text;not null;default:''" json:"author"`
	AuthorFlair string `gorm:"type:text;not null;default:''" json:"author_flair"`
	Body        string `gorm:"type:text;not null;default:''" json:"body"`
	Score       int    `gorm:"not null;default:0" json:"score"`
	Depth       int    `gorm:"not null;default:0" json:"depth"`

	Removed bool `gorm:"not null;default:false" json:"removed"`
	Deleted bool `gorm:"not null;default:false" json:"deleted"`

	CreatedUTC time.Time `gorm:"not null" json:"created_utc"`
	FetchedAt  time.Time `gorm:"not null" json:"fetched_at"`

	RawJSON datatypes.JSON `gorm:"type:jsonb" json:"raw_json,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Comment) TableName() string { return "reddit_comments" }
