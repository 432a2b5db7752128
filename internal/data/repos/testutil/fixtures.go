package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/domain/social"
)

func SeedSource(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, value string) *listening.Source {
	tb.Helper()
	s := &listening.Source{
		ID:      uuid.New(),
		OwnerID: ownerID,
		GroupID: groupID,
		Kind:    listening.SourceKindSubreddit,
		Value:   value,
		Enabled: true,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed source: %v", err)
	}
	return s
}

func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, externalID string, createdUTC time.Time, quality float64) *listening.Item {
	tb.Helper()
	item := &listening.Item{
		ID:           uuid.New(),
		SourceID:     sourceID,
		Platform:     "reddit",
		ExternalID:   externalID,
		Title:        "title " + externalID,
		Body:         "body " + externalID,
		Author:       "author",
		Subreddit:    "gamedev",
		Score:        10,
		NumComments:  4,
		QualityScore: quality,
		CreatedUTC:   createdUTC.UTC(),
		FetchedAt:    time.Now().UTC(),
		RawJSON:      datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(item).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return item
}

func SeedCompetitor(tb testing.TB, ctx context.Context, tx *gorm.DB, platform, username string) *social.CompetitorProfile {
	tb.Helper()
	c := &social.CompetitorProfile{
		ID:       uuid.New(),
		Platform: platform,
		Username: username,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed competitor: %v", err)
	}
	return c
}

func SeedTrackedCompetitor(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, platform, username string) *social.CompetitorProfile {
	tb.Helper()
	c := SeedCompetitor(tb, ctx, tx, platform, username)
	link := &social.UserCompetitor{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		GroupID:      groupID,
		CompetitorID: c.ID,
	}
	if err := tx.WithContext(ctx).Create(link).Error; err != nil {
		tb.Fatalf("seed user competitor: %v", err)
	}
	return c
}

func jsonStringArray(items []string) datatypes.JSON {
	out := "["
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", s)
	}
	out += "]"
	return datatypes.JSON([]byte(out))
}

func SeedCompetitorPost(tb testing.TB, ctx context.Context, tx *gorm.DB, competitor *social.CompetitorProfile, postID string, likes, comments int, views *int, postedAt time.Time, hashtags ...string) *social.CompetitorPost {
	tb.Helper()
	p := &social.CompetitorPost{
		ID:           uuid.New(),
		CompetitorID: competitor.ID,
		Platform:     competitor.Platform,
		PostID:       postID,
		Username:     competitor.Username,
		Content:      "hook line for " + postID + "\nrest of the caption",
		Likes:        likes,
		Comments:     comments,
		Views:        views,
		Hashtags:     jsonStringArray(hashtags),
		PostedAt:     postedAt.UTC(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed competitor post: %v", err)
	}
	return p
}

func SeedGameContext(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, title, genre string) *social.GameContext {
	tb.Helper()
	gc := &social.GameContext{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		GroupID:      groupID,
		GameTitle:    title,
		PrimaryGenre: genre,
		Tone:         "playful",
		Audience:     "indie gamers",
		KeyMechanics: datatypes.JSON([]byte(`["deckbuilding"]`)),
	}
	if err := tx.WithContext(ctx).Create(gc).Error; err != nil {
		tb.Fatalf("seed game context: %v", err)
	}
	return gc
}

func SeedHashtagPost(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID, groupID uuid.UUID, platform, hashtag, postID string, postedAt time.Time, hashtags ...string) *social.HashtagPost {
	tb.Helper()
	p := &social.HashtagPost{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		GroupID:   groupID,
		Platform:  platform,
		Hashtag:   hashtag,
		PostID:    postID,
		Username:  "poster",
		Caption:   "caption " + postID,
		Likes:     5,
		Comments:  1,
		Hashtags:  jsonStringArray(hashtags),
		PostedAt:  postedAt.UTC(),
		ScrapedAt: time.Now().UTC(),
		RawJSON:   datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed hashtag post: %v", err)
	}
	return p
}
