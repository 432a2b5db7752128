package social

import (
	"time"

	"github.com/google/uuid"
)

// WorkshopDocument is a tenant-uploaded marketing document. Text extraction
// and chunking happen upstream; the aggregator only reads chunks of
// documents whose status is "ready".
type WorkshopDocument struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	GroupID uuid.UUID `gorm:"type:uuid;not null;index" json:"group_id"`

	Title  string `gorm:"type:text;not null;default:''" json:"title"`
	Status string `gorm:"type:text;not null;default:'pending';index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (WorkshopDocument) TableName() string { return "workshop_documents" }

// WorkshopChunk is one retrieval chunk of a workshop document.
type WorkshopChunk struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	DocumentID uuid.UUID         `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *WorkshopDocument `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	Index int    `gorm:"not null;default:0" json:"index"`
	Text  string `gorm:"type:text;not null" json:"text"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (WorkshopChunk) TableName() string { return "workshop_chunks" }
