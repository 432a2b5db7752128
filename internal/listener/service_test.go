package listener

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gamesignal/gamesignal-backend/internal/clients/reddit"
	"github.com/gamesignal/gamesignal-backend/internal/config"
	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/strategy"
)

// ---- fakes ----

type fakeFetcher struct {
	mu           sync.Mutex
	posts        map[string][]reddit.Post // keyed by source value
	comments     map[string][]reddit.Comment
	failValues   map[string]bool
	lastSeenSeen map[string]*time.Time
	commentCalls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		posts:        map[string][]reddit.Post{},
		comments:     map[string][]reddit.Comment{},
		failValues:   map[string]bool{},
		lastSeenSeen: map[string]*time.Time{},
	}
}

func (f *fakeFetcher) FetchSubredditNew(ctx context.Context, name string, limit int, lastSeen *time.Time) ([]reddit.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeenSeen[name] = lastSeen
	if f.failValues[name] {
		return nil, errors.New("reddit unavailable")
	}
	var out []reddit.Post
	for _, p := range f.posts[name] {
		if lastSeen != nil && !p.CreatedUTC.After(*lastSeen) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchSearch(ctx context.Context, query, subreddit string, limit int, lastSeen *time.Time) ([]reddit.Post, error) {
	return f.FetchSubredditNew(ctx, query, limit, lastSeen)
}

func (f *fakeFetcher) FetchComments(ctx context.Context, externalID string, limit, depth int) ([]reddit.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commentCalls++
	return f.comments[externalID], nil
}

type fakeStore struct {
	mu       sync.Mutex
	sources  []*types.Source
	states   map[uuid.UUID]*types.ListenerState
	items    map[string]*types.Item // keyed by external id
	comments map[string]*types.Comment
	chunks   []*types.Chunk
	cards    []*types.StrategyCard
	alerts   []*types.Alert
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:   map[uuid.UUID]*types.ListenerState{},
		items:    map[string]*types.Item{},
		comments: map[string]*types.Comment{},
	}
}

func (s *fakeStore) repos() Repos {
	return Repos{
		Sources: (*fakeSourceRepo)(s), States: (*fakeStateRepo)(s),
		Items: (*fakeItemRepo)(s), Comments: (*fakeCommentRepo)(s),
		Chunks: (*fakeChunkRepo)(s), Cards: (*fakeCardRepo)(s),
		Alerts: (*fakeAlertRepo)(s),
	}
}

type fakeSourceRepo fakeStore

func (r *fakeSourceRepo) Create(ctx context.Context, tx *gorm.DB, src *types.Source) (*types.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
	return src, nil
}

func (r *fakeSourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range r.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSourceRepo) GetEnabled(ctx context.Context, tx *gorm.DB) ([]*types.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Source
	for _, src := range r.sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) SetEnabled(ctx context.Context, tx *gorm.DB, id uuid.UUID, enabled bool) error {
	return nil
}

func (r *fakeSourceRepo) DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID, ownerID *uuid.UUID) error {
	return nil
}

type fakeStateRepo fakeStore

func (r *fakeStateRepo) Get(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ListenerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[sourceID], nil
}

func (r *fakeStateRepo) Advance(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, lastSeen, runAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[sourceID]
	if !ok {
		r.states[sourceID] = &types.ListenerState{SourceID: sourceID, LastSeenCreatedUTC: lastSeen, LastRunAt: runAt}
		return nil
	}
	if lastSeen.After(state.LastSeenCreatedUTC) {
		state.LastSeenCreatedUTC = lastSeen
	}
	state.LastRunAt = runAt
	return nil
}

type fakeItemRepo fakeStore

func (r *fakeItemRepo) Upsert(ctx context.Context, tx *gorm.DB, item *types.Item) (*types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[item.ExternalID]; ok {
		existing.Score = item.Score
		existing.NumComments = item.NumComments
		existing.QualityScore = item.QualityScore
		return existing, nil
	}
	item.ID = uuid.New()
	r.items[item.ExternalID] = item
	return item, nil
}

func (r *fakeItemRepo) CountInWindow(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, start, end time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.items {
		if item.SourceID != sourceID {
			continue
		}
		if !item.CreatedUTC.Before(start) && item.CreatedUTC.Before(end) {
			n++
		}
	}
	return n, nil
}

func (r *fakeItemRepo) TopByQuality(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, start, end time.Time, limit int) ([]*types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Item
	for _, item := range r.items {
		if item.SourceID == sourceID && !item.CreatedUTC.Before(start) && item.CreatedUTC.Before(end) {
			out = append(out, item)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].QualityScore > out[i].QualityScore {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeItemRepo) ListMissingCards(ctx context.Context, tx *gorm.DB, minQuality float64, limit int) ([]*types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	withCard := map[uuid.UUID]bool{}
	for _, card := range r.cards {
		if card.CommentID == nil {
			withCard[card.ItemID] = true
		}
	}
	var out []*types.Item
	for _, item := range r.items {
		if item.QualityScore >= minQuality && !withCard[item.ID] {
			out = append(out, item)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeCommentRepo fakeStore

func (r *fakeCommentRepo) Upsert(ctx context.Context, tx *gorm.DB, c *types.Comment) (*types.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.comments[c.ExternalID]; ok {
		return existing, nil
	}
	c.ID = uuid.New()
	r.comments[c.ExternalID] = c
	return c, nil
}

func (r *fakeCommentRepo) GetByItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*types.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Comment
	for _, c := range r.comments {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeChunkRepo fakeStore

func (r *fakeChunkRepo) Insert(ctx context.Context, tx *gorm.DB, chunk *types.Chunk) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.chunks {
		if existing.Hash == chunk.Hash {
			return false, nil
		}
	}
	r.chunks = append(r.chunks, chunk)
	return true, nil
}

func (r *fakeChunkRepo) CountByItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, chunk := range r.chunks {
		if chunk.ItemID == itemID {
			n++
		}
	}
	return n, nil
}

type fakeCardRepo fakeStore

func (r *fakeCardRepo) Create(ctx context.Context, tx *gorm.DB, card *types.StrategyCard) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cards {
		if existing.CommentID == nil && card.CommentID == nil && existing.ItemID == card.ItemID {
			return false, nil
		}
	}
	r.cards = append(r.cards, card)
	return true, nil
}

func (r *fakeCardRepo) ExistsForItem(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.cards {
		if card.ItemID == itemID && card.CommentID == nil {
			return true, nil
		}
	}
	return false, nil
}

type fakeAlertRepo fakeStore

func (r *fakeAlertRepo) Create(ctx context.Context, tx *gorm.DB, alert *types.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *fakeAlertRepo) GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Alert
	for _, alert := range r.alerts {
		if alert.SourceID == sourceID {
			out = append(out, alert)
		}
	}
	return out, nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	card  *types.StrategyCard
	calls []strategy.ExtractInput
}

func (f *fakeExtractor) Extract(ctx context.Context, in strategy.ExtractInput) *types.StrategyCard {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.card == nil {
		return nil
	}
	copied := *f.card
	return &copied
}

// ---- helpers ----

func testConfig() config.Config {
	cfg := config.Load()
	cfg.Listener.Concurrency = 2
	return cfg
}

func testCard() *types.StrategyCard {
	return &types.StrategyCard{
		Tactic:          "share devlogs",
		PlatformTargets: datatypes.JSON([]byte(`["tiktok"]`)),
		Steps:           datatypes.JSON([]byte(`[]`)),
		Preconditions:   datatypes.JSON([]byte(`{}`)),
		Metrics:         datatypes.JSON([]byte(`{}`)),
		Risks:           datatypes.JSON([]byte(`[]`)),
		Evidence:        datatypes.JSON([]byte(`{}`)),
		Confidence:      0.9,
	}
}

func newTestService(t *testing.T, store *fakeStore, fetcher *fakeFetcher, ex CardExtractor) *Service {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewService(store.repos(), fetcher, ex, nil, testConfig(), log)
}

func goodPost(externalID string, created time.Time) reddit.Post {
	// Body long enough that the default chunk minimum emits one chunk.
	body := strings.Repeat("We iterated on the trailer, posted weekly devlogs, and tracked every wishlist surge. ", 24)
	return reddit.Post{
		ExternalID: externalID, Subreddit: "gamedev",
		Title: "How we got 100k wishlists", Body: body,
		Author: "dev", Score: 50, NumComments: 12,
		CreatedUTC: created, Permalink: "https://www.reddit.com/r/gamedev/comments/" + externalID + "/",
	}
}

// ---- tests ----

func TestRunPassPersistsAndAdvancesWatermark(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	ex := &fakeExtractor{card: testCard()}
	svc := newTestService(t, store, fetcher, ex)

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)

	now := time.Now().UTC()
	newest := now.Add(-time.Hour).Truncate(time.Second)
	older := now.Add(-3 * time.Hour).Truncate(time.Second)
	fetcher.posts["gamedev"] = []reddit.Post{goodPost("t3_a", newest), goodPost("t3_b", older)}
	fetcher.comments["t3_a"] = []reddit.Comment{
		{ExternalID: "t1_x", Body: "We used short clips.", Author: "c1", Score: 20, CreatedUTC: now},
		{ExternalID: "t1_y", Body: "[removed]", Author: "c2", Score: 5, CreatedUTC: now},
	}

	res, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if res.ItemsSeen != 2 || res.ItemsKept != 2 {
		t.Fatalf("result: %+v", res)
	}
	if res.CardsCreated != 2 {
		t.Fatalf("expected one card per item, got %d", res.CardsCreated)
	}

	state := store.states[source.ID]
	if state == nil || !state.LastSeenCreatedUTC.Equal(newest) {
		t.Fatalf("watermark must advance to the newest created_utc, got %+v", state)
	}
	if len(store.comments) != 2 {
		t.Fatalf("both comments must persist: %d", len(store.comments))
	}
	tomb := store.comments["t1_y"]
	if tomb == nil || !tomb.Removed || tomb.Body != "[removed]" {
		t.Fatalf("removed comment must persist as a flagged tombstone: %+v", tomb)
	}
	if len(store.chunks) != 2 {
		t.Fatalf("expected one chunk per item, got %d", len(store.chunks))
	}
	if fetcher.commentCalls != 2 {
		t.Fatalf("high-quality items must fetch comments: %d calls", fetcher.commentCalls)
	}
}

func TestDeletedCommentStoredAsTombstone(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	ex := &fakeExtractor{card: testCard()}
	svc := newTestService(t, store, fetcher, ex)

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)

	now := time.Now().UTC()
	fetcher.posts["gamedev"] = []reddit.Post{goodPost("t3_d", now.Add(-time.Hour))}
	fetcher.comments["t3_d"] = []reddit.Comment{
		{ExternalID: "t1_del", Body: "[deleted]", Author: "u2", Score: 3, CreatedUTC: now},
		{ExternalID: "t1_live", Body: "Post your trailer on a Friday.", Author: "u3", Score: 8, CreatedUTC: now},
	}

	if _, err := svc.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	tomb := store.comments["t1_del"]
	if tomb == nil {
		t.Fatal("deleted comment must still be stored")
	}
	if tomb.Removed || !tomb.Deleted || tomb.Body != "[deleted]" {
		t.Fatalf("tombstone flags: %+v", tomb)
	}
	for _, chunk := range store.chunks {
		if chunk.CommentID != nil && *chunk.CommentID == tomb.ID {
			t.Fatal("tombstone comment must not be chunked")
		}
	}
	if len(ex.calls) != 1 {
		t.Fatalf("extractor calls: %d", len(ex.calls))
	}
	for _, body := range ex.calls[0].Comments {
		if body == "[deleted]" {
			t.Fatal("tombstone body must not reach the extractor")
		}
	}
}

func TestRunPassSkipsLowQualityItems(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	svc := newTestService(t, store, fetcher, &fakeExtractor{})

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)

	now := time.Now().UTC()
	low := goodPost("t3_low", now.Add(-time.Hour))
	low.Score = 1
	low.NumComments = 0
	fetcher.posts["gamedev"] = []reddit.Post{low}

	res, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if res.ItemsSeen != 1 || res.ItemsKept != 0 {
		t.Fatalf("result: %+v", res)
	}
	if len(store.items) != 0 {
		t.Fatal("filtered item must not persist")
	}
	// The watermark still advances past filtered items so the next pass
	// does not refetch them.
	if store.states[source.ID] == nil {
		t.Fatal("watermark must advance even when every item is filtered")
	}
}

func TestRunPassFailingSourceDoesNotAbortOthers(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	svc := newTestService(t, store, fetcher, &fakeExtractor{})

	bad := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "broken", Enabled: true}
	good := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, bad, good)

	fetcher.failValues["broken"] = true
	fetcher.posts["gamedev"] = []reddit.Post{goodPost("t3_ok", time.Now().UTC().Add(-time.Hour))}

	res, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass must not propagate a per-source failure: %v", err)
	}
	if res.ItemsKept != 1 {
		t.Fatalf("healthy source must still be processed: %+v", res)
	}
}

func TestRunPassUsesWatermarkAsLowerBound(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	svc := newTestService(t, store, fetcher, &fakeExtractor{})

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)
	mark := time.Now().UTC().Add(-2 * time.Hour)
	store.states[source.ID] = &types.ListenerState{SourceID: source.ID, LastSeenCreatedUTC: mark}

	if _, err := svc.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	got := fetcher.lastSeenSeen["gamedev"]
	if got == nil || !got.Equal(mark) {
		t.Fatalf("fetch must pass the watermark as lower bound, got %v", got)
	}
}

func TestSpikeCheckRecordsAlert(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	svc := newTestService(t, store, fetcher, &fakeExtractor{})

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)

	now := time.Now().UTC()
	var posts []reddit.Post
	for i := 0; i < 12; i++ {
		posts = append(posts, goodPost(external(i), now.Add(-time.Duration(i+1)*time.Minute)))
	}
	// Two items in the previous window: factor 12/2 = 6 ≥ 2.0, current 12 ≥ 10.
	posts = append(posts,
		goodPost("t3_old1", now.Add(-30*time.Hour)),
		goodPost("t3_old2", now.Add(-31*time.Hour)))
	fetcher.posts["gamedev"] = posts

	res, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if res.Alerts != 1 {
		t.Fatalf("expected one alert, got %d", res.Alerts)
	}
	alert := store.alerts[0]
	if alert.Factor != 6 || alert.CurrentValue != 12 || alert.PreviousValue != 2 {
		t.Fatalf("alert numbers: %+v", alert)
	}
	var topIDs []string
	if err := json.Unmarshal(alert.TopItemExternalIDs, &topIDs); err != nil {
		t.Fatalf("decode top ids: %v", err)
	}
	if len(topIDs) != 5 || !strings.HasPrefix(topIDs[0], "t3_p") {
		t.Fatalf("alert must carry the top five item ids: %v", topIDs)
	}
}

func external(i int) string {
	return "t3_p" + string(rune('0'+i%10)) + string(rune('a'+i/10))
}

func TestSpikeCheckBelowThresholdIsQuiet(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	svc := newTestService(t, store, fetcher, &fakeExtractor{})

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)

	now := time.Now().UTC()
	// High factor but below the minimum count.
	fetcher.posts["gamedev"] = []reddit.Post{
		goodPost("t3_q1", now.Add(-time.Hour)),
		goodPost("t3_q2", now.Add(-2*time.Hour)),
	}

	res, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if res.Alerts != 0 || len(store.alerts) != 0 {
		t.Fatalf("no alert expected: %+v", res)
	}
}

func TestBackfillDoesNotTouchWatermark(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	svc := newTestService(t, store, fetcher, &fakeExtractor{})

	source := &types.Source{ID: uuid.New(), Kind: types.SourceKindSubreddit, Value: "gamedev", Enabled: true}
	store.sources = append(store.sources, source)
	fetcher.posts["gamedev"] = []reddit.Post{goodPost("t3_bf", time.Now().UTC().Add(-2*time.Hour))}

	res, err := svc.Backfill(context.Background(), source.ID, 48)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if res.ItemsKept != 1 {
		t.Fatalf("result: %+v", res)
	}
	if store.states[source.ID] != nil {
		t.Fatal("backfill must not advance the watermark")
	}
	bound := fetcher.lastSeenSeen["gamedev"]
	if bound == nil {
		t.Fatal("backfill must bound the fetch at now-hours")
	}
}

func TestReprocessCardsFillsMissingCards(t *testing.T) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	ex := &fakeExtractor{card: testCard()}
	svc := newTestService(t, store, fetcher, ex)

	itemID := uuid.New()
	store.items["t3_m"] = &types.Item{
		ID: itemID, SourceID: uuid.New(), ExternalID: "t3_m",
		Title: "t", Body: "b", QualityScore: 1.2,
		Permalink: "https://www.reddit.com/r/gamedev/comments/m/",
	}

	created, err := svc.ReprocessCards(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReprocessCards: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 card, got %d", created)
	}
	if len(ex.calls) != 1 || ex.calls[0].Permalink != "https://www.reddit.com/r/gamedev/comments/m/" {
		t.Fatalf("extractor input: %+v", ex.calls)
	}

	// Second run finds nothing to do.
	created, err = svc.ReprocessCards(context.Background(), 10)
	if err != nil || created != 0 {
		t.Fatalf("second run: created=%d err=%v", created, err)
	}
}
