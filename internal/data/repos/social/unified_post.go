package social

import (
	"context"
	"time"

	"gorm.io/gorm"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/social"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

type UnifiedPostRepo interface {
	ListSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.UnifiedPost, error)
}

type unifiedPostRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnifiedPostRepo(db *gorm.DB, baseLog *logger.Logger) UnifiedPostRepo {
	return &unifiedPostRepo{db: db, log: baseLog.With("repo", "UnifiedPostRepo")}
}

func (r *unifiedPostRepo) ListSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.UnifiedPost, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var posts []*types.UnifiedPost
	if err := transaction.WithContext(ctx).
		Table("unified_posts").
		Where("posted_at >= ?", since.UTC()).
		Order("username ASC, posted_at DESC").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}
