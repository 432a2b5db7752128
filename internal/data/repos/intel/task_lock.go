package intel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/intel"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

type TaskLockRepo interface {
	Acquire(ctx context.Context, tx *gorm.DB, taskName, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tx *gorm.DB, taskName, owner string) error
}

type taskLockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskLockRepo(db *gorm.DB, baseLog *logger.Logger) TaskLockRepo {
	return &taskLockRepo{db: db, log: baseLog.With("repo", "TaskLockRepo")}
}

// Acquire sweeps expired rows, then races on the task_name unique index.
// Losing the race (insert no-ops) means another worker holds the lock.
func (r *taskLockRepo) Acquire(ctx context.Context, tx *gorm.DB, taskName, owner string, ttl time.Duration) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if taskName == "" || owner == "" || ttl <= 0 {
		return false, sigerr.ErrInvalidArgument
	}
	now := time.Now().UTC()

	if err := transaction.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&types.TaskLock{}).Error; err != nil {
		return false, err
	}

	lock := &types.TaskLock{
		ID:        uuid.New(),
		TaskName:  taskName,
		LockedAt:  now,
		LockedBy:  owner,
		ExpiresAt: now.Add(ttl),
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_name"}},
			DoNothing: true,
		}).
		Create(lock)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *taskLockRepo) Release(ctx context.Context, tx *gorm.DB, taskName, owner string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("task_name = ? AND locked_by = ?", taskName, owner).
		Delete(&types.TaskLock{}).Error
}
