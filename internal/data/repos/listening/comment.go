package listening

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

type CommentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, comment *types.Comment) (*types.Comment, error)
	GetByItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*types.Comment, error)
}

type commentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommentRepo(db *gorm.DB, baseLog *logger.Logger) CommentRepo {
	return &commentRepo{db: db, log: baseLog.With("repo", "CommentRepo")}
}

func (r *commentRepo) Upsert(ctx context.Context, tx *gorm.DB, comment *types.Comment) (*types.Comment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if comment == nil || comment.ExternalID == "" || comment.ItemID == uuid.Nil {
		return nil, sigerr.ErrInvalidArgument
	}
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}, {Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"score":        gorm.Expr("EXCLUDED.score"),
				"body":         gorm.Expr("EXCLUDED.body"),
				"author_flair": gorm.Expr("EXCLUDED.author_flair"),
				"removed":      gorm.Expr("EXCLUDED.removed"),
				"deleted":      gorm.Expr("EXCLUDED.deleted"),
				"fetched_at":   gorm.Expr("EXCLUDED.fetched_at"),
				"raw_json":     gorm.Expr("EXCLUDED.raw_json"),
				"updated_at":   time.Now().UTC(),
			}),
		}).
		Create(comment).Error; err != nil {
		return nil, err
	}

	var persisted types.Comment
	if err := transaction.WithContext(ctx).
		Where("item_id = ? AND external_id = ?", comment.ItemID, comment.ExternalID).
		First(&persisted).Error; err != nil {
		return nil, err
	}
	return &persisted, nil
}

func (r *commentRepo) GetByItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*types.Comment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var comments []*types.Comment
	if err := transaction.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("score DESC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
