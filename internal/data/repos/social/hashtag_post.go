package social

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/social"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

type HashtagPostRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, post *types.HashtagPost) (bool, error)
	ScrapedHashtags(ctx context.Context, tx *gorm.DB, platform string) (map[string]struct{}, error)
	HashtagFrequencies(ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, platform string, since time.Time) (map[string]int, error)
}

type hashtagPostRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHashtagPostRepo(db *gorm.DB, baseLog *logger.Logger) HashtagPostRepo {
	return &hashtagPostRepo{db: db, log: baseLog.With("repo", "HashtagPostRepo")}
}

// Upsert lands a scraped post on the (platform, post_id) key; refetches
// refresh the engagement counters and the scrape timestamp. The bool
// reports whether the row was new.
func (r *hashtagPostRepo) Upsert(ctx context.Context, tx *gorm.DB, post *types.HashtagPost) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if post == nil || post.Platform == "" || post.PostID == "" {
		return false, sigerr.ErrInvalidArgument
	}
	post.Hashtag = strings.ToLower(strings.TrimSpace(post.Hashtag))
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "platform"}, {Name: "post_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"likes":      gorm.Expr("EXCLUDED.likes"),
				"comments":   gorm.Expr("EXCLUDED.comments"),
				"views":      gorm.Expr("EXCLUDED.views"),
				"scraped_at": gorm.Expr("EXCLUDED.scraped_at"),
				"raw_json":   gorm.Expr("EXCLUDED.raw_json"),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(post)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ScrapedHashtags is the already-scraped set for a platform, case-folded.
func (r *hashtagPostRepo) ScrapedHashtags(ctx context.Context, tx *gorm.DB, platform string) (map[string]struct{}, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tags []string
	if err := transaction.WithContext(ctx).
		Model(&types.HashtagPost{}).
		Distinct("lower(hashtag)").
		Where("platform = ?", platform).
		Pluck("lower(hashtag)", &tags).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag != "" {
			out[tag] = struct{}{}
		}
	}
	return out, nil
}

// HashtagFrequencies counts case-folded hashtag occurrences inside scraped
// hashtag posts' caption hashtags over the window.
func (r *hashtagPostRepo) HashtagFrequencies(ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, platform string, since time.Time) (map[string]int, error) {
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
		FROM hashtag_posts hp,
		     jsonb_array_elements_text(hp.hashtags) AS tag
		WHERE hp.owner_id = ?
		  AND hp.group_id = ?
		  AND hp.platform = ?
		  AND hp.posted_at >= ?
		GROUP BY lower(tag)
	`, ownerID, groupID, platform, since.UTC()).Scan(&rows).Error; err != nil {
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
