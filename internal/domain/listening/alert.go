package listening

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Alert records a 24h activity spike for a source. Append-only.
type Alert struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SourceID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_id"`
	Source   *Source   `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`

	WindowStart time.Time `gorm:"not null" json:"window_start"`
	WindowEnd   time.Time `gorm:"not null" json:"window_end"`

	Metric        string  `gorm:"type:text;not null;default:'item_count'" json:"metric"`
	CurrentValue  float64 `gorm:"type:double precision;not null" json:"current_value"`
	PreviousValue float64 `gorm:"type:double precision;not null" json:"previous_value"`
	Factor        float64 `gorm:"type:double precision;not null" json:"factor"`

	TopItemExternalIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"top_item_external_ids"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Alert) TableName() string { return "reddit_alerts" }
