package listening

import (
	"time"

	"github.com/google/uuid"
)

// ListenerState is the per-source fetch watermark. LastSeenCreatedUTC only
// ever moves forward, and only at the end of a fully successful pass.
type ListenerState struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SourceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_listener_state_source" json:"source_id"`
	Source   *Source   `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`

	LastSeenCreatedUTC time.Time `gorm:"not null;default:'epoch'" json:"last_seen_created_utc"`
	LastRunAt          time.Time `gorm:"not null;default:'epoch'" json:"last_run_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ListenerState) TableName() string { return "listener_states" }
