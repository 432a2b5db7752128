package listening

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded span of item or comment text prepared for retrieval.
// Hash is the sha256 of the final chunk text (header and sentinels included)
// and is the dedupe key: inserting an existing hash is a silent no-op.
type Chunk struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"item_id"`
	Item   *Item     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ItemID;references:ID" json:"item,omitempty"`

	CommentID *uuid.UUID `gorm:"type:uuid;index" json:"comment_id,omitempty"`
	Comment   *Comment   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CommentID;references:ID" json:"comment,omitempty"`

	Text string `gorm:"type:text;not null" json:"text"`
	Hash string `gorm:"type:text;not null;uniqueIndex:idx_reddit_chunk_hash" json:"hash"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string { return "reddit_chunks" }
