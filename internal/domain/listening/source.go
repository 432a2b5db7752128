package listening

import (
	"time"

	"github.com/google/uuid"
)

// Source kinds.
const (
	SourceKindSubreddit = "subreddit"
	SourceKindKeyword   = "keyword"
)

// Source is a monitored reddit subreddit or keyword search. Value and
// SubredditFilter are lowercased on write; SubredditFilter stays "" for
// subreddit sources so the composite unique index never sees NULL.
type Source struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	OwnerID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reddit_source_key,priority:1" json:"owner_id"`
	GroupID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reddit_source_key,priority:2" json:"group_id"`

	Kind            string `gorm:"type:text;not null;uniqueIndex:idx_reddit_source_key,priority:3" json:"kind"`
	Value           string `gorm:"type:text;not null;uniqueIndex:idx_reddit_source_key,priority:4" json:"value"`
	SubredditFilter string `gorm:"type:text;not null;default:'';uniqueIndex:idx_reddit_source_key,priority:5" json:"subreddit_filter"`

	Enabled bool `gorm:"not null;default:true;index" json:"enabled"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Source) TableName() string { return "reddit_sources" }
