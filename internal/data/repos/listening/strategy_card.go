package listening

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

type StrategyCardRepo interface {
	Create(ctx context.Context, tx *gorm.DB, card *types.StrategyCard) (bool, error)
	ExistsForItem(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (bool, error)
}

type strategyCardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStrategyCardRepo(db *gorm.DB, baseLog *logger.Logger) StrategyCardRepo {
	return &strategyCardRepo{db: db, log: baseLog.With("repo", "StrategyCardRepo")}
}

// Create enforces the one-card rule: item-level cards conflict on the
// partial item_id index, comment-level cards on the comment_id index.
// Either way a duplicate is a silent no-op.
func (r *strategyCardRepo) Create(ctx context.Context, tx *gorm.DB, card *types.StrategyCard) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if card == nil || card.ItemID == uuid.Nil || card.Tactic == "" {
		return false, sigerr.ErrInvalidArgument
	}
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "comment_id IS NULL"},
		}},
		DoNothing: true,
	}
	if card.CommentID != nil {
		conflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "comment_id"}},
			DoNothing: true,
		}
	}

	res := transaction.WithContext(ctx).Clauses(conflict).Create(card)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *strategyCardRepo) ExistsForItem(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.StrategyCard{}).
		Where("item_id = ? AND comment_id IS NULL", itemID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
