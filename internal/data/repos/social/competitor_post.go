package social

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

type CompetitorPostRepo interface {
	HashtagFrequencies(ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, since time.Time) (map[string]int, error)
}

type competitorPostRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompetitorPostRepo(db *gorm.DB, baseLog *logger.Logger) CompetitorPostRepo {
	return &competitorPostRepo{db: db, log: baseLog.With("repo", "CompetitorPostRepo")}
}

// HashtagFrequencies counts case-folded hashtags across the posts of every
// competitor the tenant tracks, over the window.
func (r *competitorPostRepo) HashtagFrequencies(ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, since time.Time) (map[string]int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	type row struct {
		Tag   string
		Count int
	}
	var rows []row
	if err := transaction.WithContext(ctx).Raw(`
		SELECT lower(tag) AS tag, COUNT(*) AS count
		FROM competitor_posts cp
		JOIN user_competitors uc ON uc.competitor_id = cp.competitor_id
		CROSS JOIN LATERAL jsonb_array_elements_text(cp.hashtags) AS tag
		WHERE uc.owner_id = ?
		  AND uc.group_id = ?
		  AND cp.posted_at >= ?
		GROUP BY lower(tag)
	`, ownerID, groupID, since.UTC()).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		if r.Tag != "" {
			out[r.Tag] = r.Count
		}
	}
	return out, nil
}
