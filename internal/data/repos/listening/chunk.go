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

type ChunkRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, chunk *types.Chunk) (bool, error)
	CountByItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

// Insert is a silent no-op on a duplicate hash; the bool reports whether a
// new row landed.
func (r *chunkRepo) Insert(ctx context.Context, tx *gorm.DB, chunk *types.Chunk) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if chunk == nil || chunk.Hash == "" || chunk.ItemID == uuid.Nil {
		return false, sigerr.ErrInvalidArgument
	}
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		Create(chunk)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *chunkRepo) CountByItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Chunk{}).
		Where("item_id = ?", itemID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
