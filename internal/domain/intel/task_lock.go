package intel

import (
	"time"

	"github.com/google/uuid"
)

// TaskLock is the advisory cross-process mutex. A row whose ExpiresAt is in
// the past counts as absent, so crashed holders self-heal.
type TaskLock struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	TaskName string `gorm:"type:text;not null;uniqueIndex:idx_task_lock_name" json:"task_name"`

	LockedAt  time.Time `gorm:"not null" json:"locked_at"`
	LockedBy  string    `gorm:"type:text;not null" json:"locked_by"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (TaskLock) TableName() string { return "task_locks" }
