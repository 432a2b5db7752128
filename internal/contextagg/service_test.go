package contextagg

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gamesignal/gamesignal-backend/internal/data/repos/testutil"
	inteltypes "github.com/gamesignal/gamesignal-backend/internal/domain/intel"
)

func TestDigestHooks(t *testing.T) {
	rows := []hookRow{
		{Username: "studio_a", Content: "hook one\nrest", Likes: 100, Hashtags: []byte(`["IndieGame","pixelart"]`)},
		{Username: "studio_b", Content: "hook two", Likes: 50, Hashtags: []byte(`["indiegame"]`)},
		{Username: "studio_a", Content: "hook three", Likes: 30, Hashtags: []byte(`["roguelike"]`)},
		{Username: "studio_c", Content: "hook four", Likes: 20, Hashtags: []byte(`[]`)},
	}

	hooks, hashtags, handles, avg := digestHooks(rows)
	if len(hooks) != 3 || hooks[0] != "hook one" {
		t.Fatalf("hooks: %v", hooks)
	}
	if len(hashtags) < 1 || hashtags[0] != "indiegame" {
		t.Fatalf("hashtags must rank case-folded frequency first: %v", hashtags)
	}
	if len(hashtags) != 3 || hashtags[1] != "pixelart" || hashtags[2] != "roguelike" {
		t.Fatalf("equal-frequency tags must order lexically: %v", hashtags)
	}
	if len(handles) != 3 || handles[0] != "studio_a" {
		t.Fatalf("handles: %v", handles)
	}
	if avg != 50 {
		t.Fatalf("avg likes: %v", avg)
	}
}

func TestConfidenceLabel(t *testing.T) {
	cases := []struct {
		name string
		ctx  ContentContext
		want string
	}{
		{"empty", ContentContext{}, "low"},
		{"title only", ContentContext{GameTitle: "g"}, "low"},
		{"title and chunks", ContentContext{GameTitle: "g", DocChunks: []string{"c"}}, "medium"},
		{"title hooks viral", ContentContext{
			GameTitle:  "g",
			TopHooks:   []string{"a", "b"},
			ViralHooks: []ViralHook{{Hook: "h"}},
		}, "high"},
		{"hooks and cards", ContentContext{
			TopHooks:      []string{"a", "b"},
			StrategyCards: []CardSummary{{Tactic: "t"}},
		}, "medium"},
	}
	for _, tc := range cases {
		if got := confidenceLabel(&tc.ctx); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsMissingTable(t *testing.T) {
	if !isMissingTable(errFake(`ERROR: relation "viral_outliers" does not exist (SQLSTATE 42P01)`)) {
		t.Fatal("undefined_table must match")
	}
	if isMissingTable(errFake("connection refused")) {
		t.Fatal("connectivity errors must not match")
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

// ---- database-backed paths ----

func TestAggregateGlobalNicheHit(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	ownerA, groupA := uuid.New(), uuid.New()
	ownerB, groupB := uuid.New(), uuid.New()

	// Tenant A tracks a competitor with a live outlier; tenant B shares the
	// genre but tracks nobody.
	testutil.SeedGameContext(t, ctx, tx, ownerA, groupA, "Blocks & Beams", "puzzle")
	testutil.SeedGameContext(t, ctx, tx, ownerB, groupB, "Mind Mazes", "puzzle")
	testutil.SeedTrackedCompetitor(t, ctx, tx, ownerA, groupA, "instagram", "puzzle_studio")

	now := time.Now().UTC()
	outlier := &inteltypes.ViralOutlier{
		SourceTable: "competitor_posts", SourceID: "ig:1",
		Platform: "instagram", Username: "puzzle_studio",
		Multiplier: 50, ActualEngagement: 9000, MedianEngagement: 100,
		AvailableCount: 2, SupportCount: 2,
		Hook:       "one mechanic, zero tutorials",
		AnalyzedAt: now, ExpiresAt: now.Add(48 * time.Hour),
	}
	if err := tx.WithContext(ctx).Create(outlier).Error; err != nil {
		t.Fatalf("seed outlier: %v", err)
	}

	svc := NewService(tx, testutil.Logger(t))
	got, err := svc.Aggregate(ctx, ownerB, groupB, "instagram")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(got.ViralHooks) != 1 || got.ViralHooks[0].Hook != "one mechanic, zero tutorials" {
		t.Fatalf("niche hooks must cross tenants: %+v", got.ViralHooks)
	}
	if got.GameTitle != "Mind Mazes" || got.Genre != "puzzle" {
		t.Fatalf("game context: %+v", got)
	}
}

func TestAggregateTenantFallbackStaysLocal(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	owner, group := uuid.New(), uuid.New()
	stranger, strangerGroup := uuid.New(), uuid.New()

	// No genre on the tenant's context, so the niche path is skipped and
	// only the tenant's own competitors may contribute.
	testutil.SeedGameContext(t, ctx, tx, owner, group, "Speedrun City", "")
	testutil.SeedTrackedCompetitor(t, ctx, tx, owner, group, "tiktok", "own_comp")
	testutil.SeedTrackedCompetitor(t, ctx, tx, stranger, strangerGroup, "tiktok", "other_comp")

	now := time.Now().UTC()
	for _, seed := range []struct {
		id, username, hook string
	}{
		{"tt:own", "own_comp", "our own hook"},
		{"tt:other", "other_comp", "someone else's hook"},
	} {
		outlier := &inteltypes.ViralOutlier{
			SourceTable: "competitor_posts", SourceID: seed.id,
			Platform: "tiktok", Username: seed.username,
			Multiplier: 50, ActualEngagement: 5000, MedianEngagement: 100,
			AvailableCount: 2, SupportCount: 2, Hook: seed.hook,
			AnalyzedAt: now, ExpiresAt: now.Add(48 * time.Hour),
		}
		if err := tx.WithContext(ctx).Create(outlier).Error; err != nil {
			t.Fatalf("seed outlier: %v", err)
		}
	}

	svc := NewService(tx, testutil.Logger(t))
	got, err := svc.Aggregate(ctx, owner, group, "tiktok")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(got.ViralHooks) != 1 || got.ViralHooks[0].Hook != "our own hook" {
		t.Fatalf("fallback must never cross owners: %+v", got.ViralHooks)
	}
}

func TestAggregateHookFieldsFromCompetitorPosts(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	owner, group := uuid.New(), uuid.New()
	comp := testutil.SeedTrackedCompetitor(t, ctx, tx, owner, group, "instagram", "rival")

	now := time.Now().UTC()
	testutil.SeedCompetitorPost(t, ctx, tx, comp, "p1", 300, 10, nil, now.Add(-24*time.Hour), "indiegame", "devlog")
	testutil.SeedCompetitorPost(t, ctx, tx, comp, "p2", 100, 5, nil, now.Add(-48*time.Hour), "indiegame")
	// Outside the 14-day hook window.
	testutil.SeedCompetitorPost(t, ctx, tx, comp, "p3", 900, 50, nil, now.Add(-20*24*time.Hour), "oldtag")

	svc := NewService(tx, testutil.Logger(t))
	got, err := svc.Aggregate(ctx, owner, group, "instagram")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(got.TopHooks) != 2 {
		t.Fatalf("hooks: %v", got.TopHooks)
	}
	if len(got.TopHashtags) == 0 || got.TopHashtags[0] != "indiegame" {
		t.Fatalf("hashtags: %v", got.TopHashtags)
	}
	if got.CompetitorHandles[0] != "rival" {
		t.Fatalf("handles: %v", got.CompetitorHandles)
	}
	if got.AvgEngagement != 200 {
		t.Fatalf("avg engagement: %v", got.AvgEngagement)
	}
	if got.BestPostingDay == "" {
		t.Fatal("best posting day must be derived")
	}
}

func TestContentContextSerializes(t *testing.T) {
	ctx := ContentContext{
		GameTitle: "g", ViralHooks: []ViralHook{{Hook: "h", Multiplier: 10}},
		Confidence: "low",
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty payload")
	}
}
