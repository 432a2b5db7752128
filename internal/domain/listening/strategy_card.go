package listening

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StrategyCard is a structured marketing tactic extracted from an item (or
// one of its comments) by the LLM extractor. At most one card exists per
// item and per comment.
type StrategyCard struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"item_id"`
	Item   *Item     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ItemID;references:ID" json:"item,omitempty"`

	CommentID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_strategy_card_comment" json:"comment_id,omitempty"`
	Comment   *Comment   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CommentID;references:ID" json:"comment,omitempty"`

	PlatformTargets datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"platform_targets"`
	Niche           string         `gorm:"type:text;not null;default:''" json:"niche"`
	Tactic          string         `gorm:"type:text;not null" json:"tactic"`

	Steps         datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"steps"`
	Preconditions datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"preconditions"`
	Metrics       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metrics"`
	Risks         datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"risks"`

	Confidence float64        `gorm:"type:double precision;not null;default:0;index" json:"confidence"`
	Evidence   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"evidence"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (StrategyCard) TableName() string { return "strategy_cards" }

// CardStep is one entry of StrategyCard.Steps.
type CardStep struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
}

// CardEvidence is the decoded form of StrategyCard.Evidence.
type CardEvidence struct {
	QuoteSnippets []string `json:"quote_snippets"`
	Permalink     string   `json:"permalink"`
}
