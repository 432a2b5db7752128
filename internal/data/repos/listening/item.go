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

type ItemRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, item *types.Item) (*types.Item, error)
	CountInWindow(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, start, end time.Time) (int64, error)
	TopByQuality(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, start, end time.Time, limit int) ([]*types.Item, error)
	ListMissingCards(ctx context.Context, tx *gorm.DB, minQuality float64, limit int) ([]*types.Item, error)
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{db: db, log: baseLog.With("repo", "ItemRepo")}
}

// Upsert inserts on (platform, external_id) and on conflict refreshes only
// the volatile columns; creation metadata is never rewritten. Returns the
// persisted row so callers have the surviving id.
func (r *itemRepo) Upsert(ctx context.Context, tx *gorm.DB, item *types.Item) (*types.Item, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if item == nil || item.ExternalID == "" {
		return nil, sigerr.ErrInvalidArgument
	}
	if item.Platform == "" {
		item.Platform = "reddit"
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "platform"}, {Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"score":         gorm.Expr("EXCLUDED.score"),
				"num_comments":  gorm.Expr("EXCLUDED.num_comments"),
				"quality_score": gorm.Expr("EXCLUDED.quality_score"),
				"fetched_at":    gorm.Expr("EXCLUDED.fetched_at"),
				"raw_json":      gorm.Expr("EXCLUDED.raw_json"),
				"updated_at":    time.Now().UTC(),
			}),
		}).
		Create(item).Error; err != nil {
		return nil, err
	}

	var persisted types.Item
	if err := transaction.WithContext(ctx).
		Where("platform = ? AND external_id = ?", item.Platform, item.ExternalID).
		First(&persisted).Error; err != nil {
		return nil, err
	}
	return &persisted, nil
}

func (r *itemRepo) CountInWindow(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, start, end time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Item{}).
		Where("source_id = ? AND created_utc >= ? AND created_utc < ?", sourceID, start.UTC(), end.UTC()).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *itemRepo) TopByQuality(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, start, end time.Time, limit int) ([]*types.Item, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var items []*types.Item
	if err := transaction.WithContext(ctx).
		Where("source_id = ? AND created_utc >= ? AND created_utc < ?", sourceID, start.UTC(), end.UTC()).
		Order("quality_score DESC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListMissingCards finds items above the quality bar with no item-level
// strategy card yet, oldest first so reprocessing drains the backlog.
func (r *itemRepo) ListMissingCards(ctx context.Context, tx *gorm.DB, minQuality float64, limit int) ([]*types.Item, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var items []*types.Item
	if err := transaction.WithContext(ctx).
		Where("quality_score >= ?", minQuality).
		Where("removed = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM strategy_cards sc WHERE sc.item_id = reddit_items.id AND sc.comment_id IS NULL)").
		Order("created_utc ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
