package listening

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

type SourceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, source *types.Source) (*types.Source, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Source, error)
	GetEnabled(ctx context.Context, tx *gorm.DB) ([]*types.Source, error)
	SetEnabled(ctx context.Context, tx *gorm.DB, id uuid.UUID, enabled bool) error
	DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID, ownerID *uuid.UUID) error
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{db: db, log: baseLog.With("repo", "SourceRepo")}
}

// Create lowercases the natural-key fields and no-ops on the composite
// unique key, returning the surviving row either way.
func (r *sourceRepo) Create(ctx context.Context, tx *gorm.DB, source *types.Source) (*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if source == nil {
		return nil, sigerr.ErrInvalidArgument
	}
	source.Value = strings.ToLower(strings.TrimSpace(source.Value))
	source.SubredditFilter = strings.ToLower(strings.TrimSpace(source.SubredditFilter))
	if source.Value == "" {
		return nil, sigerr.ErrInvalidArgument
	}
	if source.Kind != types.SourceKindSubreddit && source.Kind != types.SourceKindKeyword {
		return nil, sigerr.ErrInvalidArgument
	}
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "owner_id"}, {Name: "group_id"}, {Name: "kind"},
				{Name: "value"}, {Name: "subreddit_filter"},
			},
			DoNothing: true,
		}).
		Create(source).Error; err != nil {
		return nil, err
	}

	var persisted types.Source
	if err := transaction.WithContext(ctx).
		Where("owner_id = ? AND group_id = ? AND kind = ? AND value = ? AND subreddit_filter = ?",
			source.OwnerID, source.GroupID, source.Kind, source.Value, source.SubredditFilter).
		First(&persisted).Error; err != nil {
		return nil, err
	}
	return &persisted, nil
}

func (r *sourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var source types.Source
	if err := transaction.WithContext(ctx).Where("id = ?", id).First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sigerr.ErrNotFound
		}
		return nil, err
	}
	return &source, nil
}

func (r *sourceRepo) GetEnabled(ctx context.Context, tx *gorm.DB) ([]*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var sources []*types.Source
	if err := transaction.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *sourceRepo) SetEnabled(ctx context.Context, tx *gorm.DB, id uuid.UUID, enabled bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Source{}).
		Where("id = ?", id).
		Update("enabled", enabled).Error
}

// DeleteCascade removes the source and everything hanging off it. Foreign
// keys are not enforced at the database level (migrations run with
// constraints disabled), so the cascade is explicit and runs inside one
// transaction.
func (r *sourceRepo) DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID, ownerID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		var source types.Source
		q := t.Where("id = ?", id)
		if ownerID != nil {
			q = q.Where("owner_id = ?", *ownerID)
		}
		if err := q.First(&source).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sigerr.ErrNotFound
			}
			return err
		}

		itemIDs := t.Model(&types.Item{}).Select("id").Where("source_id = ?", id)
		commentIDs := t.Model(&types.Comment{}).Select("id").Where("item_id IN (?)", itemIDs)

		if err := t.Where("comment_id IN (?)", commentIDs).Delete(&types.Chunk{}).Error; err != nil {
			return err
		}
		if err := t.Where("item_id IN (?)", itemIDs).Delete(&types.Chunk{}).Error; err != nil {
			return err
		}
		if err := t.Where("item_id IN (?)", itemIDs).Delete(&types.StrategyCard{}).Error; err != nil {
			return err
		}
		if err := t.Where("item_id IN (?)", itemIDs).Delete(&types.Comment{}).Error; err != nil {
			return err
		}
		if err := t.Where("source_id = ?", id).Delete(&types.Item{}).Error; err != nil {
			return err
		}
		if err := t.Where("source_id = ?", id).Delete(&types.Alert{}).Error; err != nil {
			return err
		}
		if err := t.Where("source_id = ?", id).Delete(&types.ListenerState{}).Error; err != nil {
			return err
		}
		return t.Where("id = ?", id).Delete(&types.Source{}).Error
	})
}
