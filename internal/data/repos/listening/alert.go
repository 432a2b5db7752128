package listening

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

type AlertRepo interface {
	Create(ctx context.Context, tx *gorm.DB, alert *types.Alert) error
	GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Alert, error)
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{db: db, log: baseLog.With("repo", "AlertRepo")}
}

func (r *alertRepo) Create(ctx context.Context, tx *gorm.DB, alert *types.Alert) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alert == nil || alert.SourceID == uuid.Nil {
		return sigerr.ErrInvalidArgument
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(alert).Error
}

func (r *alertRepo) GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var alerts []*types.Alert
	if err := transaction.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}
