package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/gamesignal/gamesignal-backend/internal/domain/intel"
	"github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/domain/social"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Reddit listening pipeline
		// =========================
		&listening.Source{},
		&listening.ListenerState{},
		&listening.Item{},
		&listening.Comment{},
		&listening.Chunk{},
		&listening.StrategyCard{},
		&listening.Alert{},

		// =========================
		// Social scraping surface
		// =========================
		&social.HashtagPost{},
		&social.GameContext{},
		&social.CompetitorProfile{},
		&social.CompetitorPost{},
		&social.UserCompetitor{},
		&social.WorkshopDocument{},
		&social.WorkshopChunk{},

		// =========================
		// Intelligence layer
		// =========================
		&intel.ViralOutlier{},
		&intel.TaskLock{},
	)
}

func EnsureListeningIndexes(db *gorm.DB) error {
	// One card per item when the card is item-level; comment-level cards are
	// deduped by the comment_id unique index on the model.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_strategy_card_item_level
		ON strategy_cards (item_id)
		WHERE comment_id IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_strategy_card_item_level: %w", err)
	}

	// Spike-window counting and top-by-quality queries.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reddit_item_source_created
		ON reddit_items (source_id, created_utc DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_reddit_item_source_created: %w", err)
	}

	return nil
}

func EnsureContextIndexes(db *gorm.DB) error {
	// Lexical retrieval over workshop chunks for the context aggregator.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_workshop_chunk_fts
		ON workshop_chunks
		USING GIN (to_tsvector('english', text));
	`).Error; err != nil {
		return fmt.Errorf("create idx_workshop_chunk_fts: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_competitor_post_posted_at
		ON competitor_posts (competitor_id, posted_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_competitor_post_posted_at: %w", err)
	}

	return nil
}

// EnsureUnifiedPostsView (re)creates the union view the viral detector scans.
// competitor_posts and hashtag_posts share the metric columns; views stays
// NULL where the platform does not report it.
func EnsureUnifiedPostsView(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE OR REPLACE VIEW unified_posts AS
		SELECT
			'competitor_posts'  AS source_table,
			cp.id::text         AS source_id,
			cp.username         AS username,
			cp.platform         AS platform,
			cp.content          AS content,
			cp.posted_at        AS posted_at,
			cp.likes            AS likes,
			cp.comments         AS comments,
			cp.views            AS views
		FROM competitor_posts cp
		UNION ALL
		SELECT
			'hashtag_posts'     AS source_table,
			hp.id::text         AS source_id,
			hp.username         AS username,
			hp.platform         AS platform,
			hp.caption          AS content,
			hp.posted_at        AS posted_at,
			hp.likes            AS likes,
			hp.comments         AS comments,
			hp.views            AS views
		FROM hashtag_posts hp;
	`).Error; err != nil {
		return fmt.Errorf("create unified_posts view: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureListeningIndexes(s.db); err != nil {
		s.log.Error("Listening index migration failed", "error", err)
		return err
	}
	if err := EnsureContextIndexes(s.db); err != nil {
		s.log.Error("Context index migration failed", "error", err)
		return err
	}
	if err := EnsureUnifiedPostsView(s.db); err != nil {
		s.log.Error("Unified posts view migration failed", "error", err)
		return err
	}
	return nil
}
