package intel

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/intel"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

// UpsertOutcome reports what the outlier upsert did.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

type ViralOutlierRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, outlier *types.ViralOutlier) (UpsertOutcome, error)
	DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type viralOutlierRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewViralOutlierRepo(db *gorm.DB, baseLog *logger.Logger) ViralOutlierRepo {
	return &viralOutlierRepo{db: db, log: baseLog.With("repo", "ViralOutlierRepo")}
}

// Upsert keys on (source_table, source_id). A row whose multiplier,
// actual_engagement, and support_count all match the stored values is left
// untouched, so back-to-back scans over unchanged data write nothing.
func (r *viralOutlierRepo) Upsert(ctx context.Context, tx *gorm.DB, outlier *types.ViralOutlier) (UpsertOutcome, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if outlier == nil || outlier.SourceTable == "" || outlier.SourceID == "" {
		return OutcomeUnchanged, sigerr.ErrInvalidArgument
	}

	var existing types.ViralOutlier
	err := transaction.WithContext(ctx).
		Where("source_table = ? AND source_id = ?", outlier.SourceTable, outlier.SourceID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if outlier.ID == uuid.Nil {
			outlier.ID = uuid.New()
		}
		if err := transaction.WithContext(ctx).Create(outlier).Error; err != nil {
			return OutcomeUnchanged, err
		}
		return OutcomeCreated, nil
	case err != nil:
		return OutcomeUnchanged, err
	}

	if existing.Multiplier == outlier.Multiplier &&
		existing.ActualEngagement == outlier.ActualEngagement &&
		existing.SupportCount == outlier.SupportCount {
		return OutcomeUnchanged, nil
	}

	updates := map[string]interface{}{
		"multiplier":        outlier.Multiplier,
		"median_engagement": outlier.MedianEngagement,
		"actual_engagement": outlier.ActualEngagement,
		"available_count":   outlier.AvailableCount,
		"support_count":     outlier.SupportCount,
		"hook":              outlier.Hook,
		"analyzed_at":       outlier.AnalyzedAt,
		"expires_at":        outlier.ExpiresAt,
		"updated_at":        time.Now().UTC(),
	}
	if err := transaction.WithContext(ctx).
		Model(&types.ViralOutlier{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeUpdated, nil
}

func (r *viralOutlierRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&types.ViralOutlier{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
