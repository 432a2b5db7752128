package listening

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

type ListenerStateRepo interface {
	Get(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ListenerState, error)
	Advance(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, lastSeen time.Time, runAt time.Time) error
}

type listenerStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewListenerStateRepo(db *gorm.DB, baseLog *logger.Logger) ListenerStateRepo {
	return &listenerStateRepo{db: db, log: baseLog.With("repo", "ListenerStateRepo")}
}

// Get returns nil (no error) when the source has never completed a pass.
func (r *listenerStateRepo) Get(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ListenerState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var state types.ListenerState
	if err := transaction.WithContext(ctx).
		Where("source_id = ?", sourceID).
		First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Advance upserts the watermark. GREATEST keeps it monotonic even if a
// stale pass finishes late.
func (r *listenerStateRepo) Advance(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, lastSeen time.Time, runAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	state := &types.ListenerState{
		ID:                 uuid.New(),
		SourceID:           sourceID,
		LastSeenCreatedUTC: lastSeen.UTC(),
		LastRunAt:          runAt.UTC(),
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_seen_created_utc": gorm.Expr("GREATEST(listener_states.last_seen_created_utc, EXCLUDED.last_seen_created_utc)"),
				"last_run_at":           gorm.Expr("EXCLUDED.last_run_at"),
				"updated_at":            time.Now().UTC(),
			}),
		}).
		Create(state).Error
}
