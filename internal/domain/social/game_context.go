package social

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GameContext is the tenant's game profile, written by onboarding flows and
// consumed read-only by the context aggregator. PrimaryGenre is the niche
// key for cross-tenant viral-hook sharing.
type GameContext struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	OwnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_game_context_tenant,priority:1" json:"owner_id"`
	GroupID uuid.UUID `gorm:"type:uuid;not null;index:idx_game_context_tenant,priority:2" json:"group_id"`

	GameTitle    string `gorm:"type:text;not null;default:''" json:"game_title"`
	PrimaryGenre string `gorm:"type:text;not null;default:'';index" json:"primary_genre"`
	Tone         string `gorm:"type:text;not null;default:''" json:"tone"`
	Audience     string `gorm:"type:text;not null;default:''" json:"audience"`

	KeyMechanics datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"key_mechanics"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (GameContext) TableName() string { return "game_contexts" }
