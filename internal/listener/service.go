package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/gamesignal/gamesignal-backend/internal/clients/reddit"
	"github.com/gamesignal/gamesignal-backend/internal/clients/redisbus"
	"github.com/gamesignal/gamesignal-backend/internal/config"
	listeningrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/listening"
	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/ingest/chunkify"
	"github.com/gamesignal/gamesignal-backend/internal/ingest/normalize"
	"github.com/gamesignal/gamesignal-backend/internal/ingest/quality"
	"github.com/gamesignal/gamesignal-backend/internal/ingest/rawjson"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
	"github.com/gamesignal/gamesignal-backend/internal/strategy"
)

const maxCardComments = 3

// Fetcher is the reddit surface the listener needs. *reddit.Client satisfies
// it; tests substitute a canned implementation.
type Fetcher interface {
	FetchSubredditNew(ctx context.Context, name string, limit int, lastSeen *time.Time) ([]reddit.Post, error)
	FetchSearch(ctx context.Context, query, subreddit string, limit int, lastSeen *time.Time) ([]reddit.Post, error)
	FetchComments(ctx context.Context, submissionExternalID string, limit, depth int) ([]reddit.Comment, error)
}

// CardExtractor yields at most one strategy card per discussion and never
// errors. *strategy.Extractor satisfies it.
type CardExtractor interface {
	Extract(ctx context.Context, in strategy.ExtractInput) *types.StrategyCard
}

// Repos bundles the persistence surface of a listening pass.
type Repos struct {
	Sources  listeningrepo.SourceRepo
	States   listeningrepo.ListenerStateRepo
	Items    listeningrepo.ItemRepo
	Comments listeningrepo.CommentRepo
	Chunks   listeningrepo.ChunkRepo
	Cards    listeningrepo.StrategyCardRepo
	Alerts   listeningrepo.AlertRepo
}

// PassResult summarizes one pass for logging and CLI output.
type PassResult struct {
	Sources      int
	ItemsSeen    int
	ItemsKept    int
	CardsCreated int
	Alerts       int
}

// Service runs the ingestion pipeline: fetch, normalize, score, persist,
// chunk, extract cards, detect spikes. A failing source never aborts the
// pass; a failing item never aborts its source.
type Service struct {
	repos     Repos
	fetcher   Fetcher
	extractor CardExtractor
	bus       redisbus.Bus
	cfg       config.Config
	log       *logger.Logger

	now func() time.Time
}

func NewService(repos Repos, fetcher Fetcher, extractor CardExtractor, bus redisbus.Bus, cfg config.Config, baseLog *logger.Logger) *Service {
	return &Service{
		repos:     repos,
		fetcher:   fetcher,
		extractor: extractor,
		bus:       bus,
		cfg:       cfg,
		log:       baseLog.With("component", "Listener"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunPass processes every enabled source once. Sources run concurrently up
// to the configured limit; work within a source stays serial so the
// watermark advance observes all of its items.
func (s *Service) RunPass(ctx context.Context) (PassResult, error) {
	ctx, span := otel.Tracer("gamesignal/listener").Start(ctx, "listener.pass")
	defer span.End()

	sources, err := s.repos.Sources.GetEnabled(ctx, nil)
	if err != nil {
		return PassResult{}, fmt.Errorf("load enabled sources: %w", err)
	}

	results := make([]PassResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.Listener.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, source := range sources {
		i, source := i, source
		g.Go(func() error {
			res, err := s.processSource(gctx, source)
			if err != nil {
				s.log.Error("source pass failed", "source_id", source.ID, "value", source.Value, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PassResult{}, err
	}

	total := PassResult{Sources: len(sources)}
	for _, res := range results {
		total.ItemsSeen += res.ItemsSeen
		total.ItemsKept += res.ItemsKept
		total.CardsCreated += res.CardsCreated
		total.Alerts += res.Alerts
	}
	span.SetAttributes(
		attribute.Int("sources", total.Sources),
		attribute.Int("items_seen", total.ItemsSeen),
		attribute.Int("items_kept", total.ItemsKept),
	)
	s.log.Info("pass complete",
		"sources", total.Sources, "items_seen", total.ItemsSeen,
		"items_kept", total.ItemsKept, "cards", total.CardsCreated, "alerts", total.Alerts)
	return total, nil
}

func (s *Service) processSource(ctx context.Context, source *types.Source) (PassResult, error) {
	var res PassResult

	state, err := s.repos.States.Get(ctx, nil, source.ID)
	if err != nil {
		return res, fmt.Errorf("load listener state: %w", err)
	}
	var lastSeen *time.Time
	if state != nil {
		t := state.LastSeenCreatedUTC
		lastSeen = &t
	}

	posts, fetchErr := s.fetch(ctx, source, lastSeen)

	var maxCreated time.Time
	for _, post := range posts {
		res.ItemsSeen++
		if post.CreatedUTC.After(maxCreated) {
			maxCreated = post.CreatedUTC
		}
		kept, card, err := s.processItem(ctx, source, post)
		if err != nil {
			s.log.Warn("item failed", "source_id", source.ID, "external_id", post.ExternalID, "error", err)
			continue
		}
		if kept {
			res.ItemsKept++
		}
		if card {
			res.CardsCreated++
		}
	}

	if res.ItemsSeen > 0 && !maxCreated.IsZero() {
		if err := s.repos.States.Advance(ctx, nil, source.ID, maxCreated, s.now()); err != nil {
			return res, fmt.Errorf("advance listener state: %w", err)
		}
	}

	alerted, err := s.spikeCheck(ctx, source)
	if err != nil {
		s.log.Warn("spike check failed", "source_id", source.ID, "error", err)
	} else if alerted {
		res.Alerts++
	}

	// A fetch error after partial results still counts as a source failure;
	// whatever was persisted above stays.
	return res, fetchErr
}

func (s *Service) fetch(ctx context.Context, source *types.Source, lastSeen *time.Time) ([]reddit.Post, error) {
	switch source.Kind {
	case types.SourceKindSubreddit:
		return s.fetcher.FetchSubredditNew(ctx, source.Value, s.cfg.Fetch.DefaultLimit, lastSeen)
	case types.SourceKindKeyword:
		return s.fetcher.FetchSearch(ctx, source.Value, source.SubredditFilter, s.cfg.Fetch.DefaultLimit, lastSeen)
	default:
		return nil, fmt.Errorf("%w: source kind %q", sigerr.ErrInvalidArgument, source.Kind)
	}
}

// processItem runs the per-item pipeline. Returns whether the item passed
// the quality gate and whether a strategy card was created.
func (s *Service) processItem(ctx context.Context, source *types.Source, post reddit.Post) (bool, bool, error) {
	now := s.now()
	title := normalize.Text(post.Title, post.Author)
	body := normalize.Text(post.Body, post.Author)

	in := quality.Input{
		Score:       post.Score,
		NumComments: post.NumComments,
		CreatedUTC:  post.CreatedUTC,
		Now:         now,
		HasFlair:    post.AuthorFlair != "",
		NSFW:        post.NSFW,
		Removed:     post.Removed || body.Removed,
	}
	score := quality.Score(in, s.cfg.Quality)
	if !quality.PassesFilter(in, score, s.cfg.Quality) {
		return false, false, nil
	}

	rawPruned, err := json.Marshal(rawjson.Prune(post.Raw))
	if err != nil {
		rawPruned = []byte("{}")
	}

	item, err := s.repos.Items.Upsert(ctx, nil, &types.Item{
		SourceID:     source.ID,
		Platform:     "reddit",
		ExternalID:   post.ExternalID,
		Title:        title.Text,
		Body:         body.Text,
		Author:       post.Author,
		Subreddit:    post.Subreddit,
		Flair:        post.AuthorFlair,
		URL:          post.ExternalURL,
		Permalink:    post.Permalink,
		Score:        post.Score,
		NumComments:  post.NumComments,
		NSFW:         post.NSFW,
		Removed:      in.Removed,
		Deleted:      body.Deleted,
		QualityScore: score,
		CreatedUTC:   post.CreatedUTC.UTC(),
		FetchedAt:    now,
		RawJSON:      datatypes.JSON(rawPruned),
	})
	if err != nil {
		return false, false, fmt.Errorf("upsert item: %w", err)
	}

	meta := chunkify.Meta{
		Subreddit:  post.Subreddit,
		Score:      post.Score,
		CreatedUTC: post.CreatedUTC,
		URL:        post.Permalink,
		Title:      title.Text,
	}
	doc := title.Text + "\n\n" + body.Text
	for _, chunk := range chunkify.Build(doc, meta, s.cfg.Chunks) {
		if _, err := s.repos.Chunks.Insert(ctx, nil, &types.Chunk{
			ItemID: item.ID, Text: chunk.Text, Hash: chunk.Hash,
		}); err != nil {
			s.log.Warn("chunk insert failed", "item_id", item.ID, "error", err)
		}
	}

	var topComments []string
	if quality.IsHighQuality(score, s.cfg.Quality) {
		topComments = s.processComments(ctx, item, meta)
	}

	cardCreated := false
	if s.extractor != nil {
		card := s.extractor.Extract(ctx, strategy.ExtractInput{
			Title:     title.Text,
			Body:      body.Text,
			Comments:  topComments,
			Permalink: post.Permalink,
		})
		if card != nil {
			card.ItemID = item.ID
			created, err := s.repos.Cards.Create(ctx, nil, card)
			if err != nil {
				s.log.Warn("card create failed", "item_id", item.ID, "error", err)
			} else {
				cardCreated = created
			}
		}
	}
	return true, cardCreated, nil
}

// processComments fetches and persists the top comments of a high-quality
// item, chunking the long ones, and returns up to three bodies for the
// extractor prompt. Deleted and removed comments are stored with their
// tombstone bodies and flags set; they produce no chunks and never reach
// the extractor.
func (s *Service) processComments(ctx context.Context, item *types.Item, meta chunkify.Meta) []string {
	fetched, err := s.fetcher.FetchComments(ctx, item.ExternalID, s.cfg.Fetch.CommentsLimit, s.cfg.Fetch.CommentsDepth)
	if err != nil {
		s.log.Warn("comments fetch failed", "item_id", item.ID, "error", err)
		return nil
	}

	var bodies []string
	for _, c := range fetched {
		res := normalize.Text(c.Body, c.Author)
		body := res.Text
		if res.Removed || res.Deleted {
			body = strings.TrimSpace(c.Body)
		}
		rawPruned, err := json.Marshal(rawjson.Prune(c.Raw))
		if err != nil {
			rawPruned = []byte("{}")
		}
		persisted, err := s.repos.Comments.Upsert(ctx, nil, &types.Comment{
			ItemID:           item.ID,
			ExternalID:       c.ExternalID,
			ParentExternalID: c.ParentExternalID,
			Author:           c.Author,
			AuthorFlair:      c.AuthorFlair,
			Body:             body,
			Score:            c.Score,
			Depth:            c.Depth,
			Removed:          res.Removed,
			Deleted:          res.Deleted,
			CreatedUTC:       c.CreatedUTC.UTC(),
			FetchedAt:        s.now(),
			RawJSON:          datatypes.JSON(rawPruned),
		})
		if err != nil {
			s.log.Warn("comment upsert failed", "item_id", item.ID, "external_id", c.ExternalID, "error", err)
			continue
		}
		if res.Removed || res.Deleted || res.Text == "" {
			continue
		}
		if len(res.Text) > s.cfg.Chunks.MinChars {
			for _, chunk := range chunkify.Build(res.Text, meta, s.cfg.Chunks) {
				if _, err := s.repos.Chunks.Insert(ctx, nil, &types.Chunk{
					ItemID: item.ID, CommentID: &persisted.ID, Text: chunk.Text, Hash: chunk.Hash,
				}); err != nil {
					s.log.Warn("comment chunk insert failed", "comment_id", persisted.ID, "error", err)
				}
			}
		}
		if len(bodies) < maxCardComments {
			bodies = append(bodies, res.Text)
		}
	}
	return bodies
}

// spikeCheck compares the last 24h item count against the 24h before it and
// records an alert when activity at least doubles with real volume behind it.
func (s *Service) spikeCheck(ctx context.Context, source *types.Source) (bool, error) {
	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)
	twoDaysAgo := now.Add(-48 * time.Hour)

	current, err := s.repos.Items.CountInWindow(ctx, nil, source.ID, dayAgo, now)
	if err != nil {
		return false, err
	}
	previous, err := s.repos.Items.CountInWindow(ctx, nil, source.ID, twoDaysAgo, dayAgo)
	if err != nil {
		return false, err
	}

	var factor float64
	switch {
	case previous == 0 && current > 0:
		factor = float64(current)
	case previous == 0:
		factor = 0
	default:
		factor = float64(current) / float64(previous)
	}
	if factor < s.cfg.Spike.FactorThreshold || current < int64(s.cfg.Spike.MinSpikeCount) {
		return false, nil
	}

	top, err := s.repos.Items.TopByQuality(ctx, nil, source.ID, dayAgo, now, 5)
	if err != nil {
		return false, err
	}
	ids := make([]string, 0, len(top))
	for _, item := range top {
		ids = append(ids, item.ExternalID)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return false, err
	}

	alert := &types.Alert{
		SourceID:           source.ID,
		WindowStart:        dayAgo,
		WindowEnd:          now,
		Metric:             "item_count",
		CurrentValue:       float64(current),
		PreviousValue:      float64(previous),
		Factor:             factor,
		TopItemExternalIDs: datatypes.JSON(idsJSON),
	}
	if err := s.repos.Alerts.Create(ctx, nil, alert); err != nil {
		return false, err
	}
	s.log.Info("spike detected",
		"source_id", source.ID, "value", source.Value,
		"current", current, "previous", previous, "factor", factor)

	if s.bus != nil {
		event := redisbus.Event{
			Kind: "spike_alert",
			Payload: map[string]any{
				"source_id":             source.ID,
				"source_value":          source.Value,
				"factor":                factor,
				"current":               current,
				"previous":              previous,
				"top_item_external_ids": ids,
			},
			EmittedAt: now,
		}
		if err := s.bus.Publish(ctx, event); err != nil {
			s.log.Warn("spike publish failed", "source_id", source.ID, "error", err)
		}
	}
	return true, nil
}

// Backfill replays history for one source: the regular per-item pipeline,
// stopping at now−hours, without touching the listener watermark.
func (s *Service) Backfill(ctx context.Context, sourceID uuid.UUID, hours int) (PassResult, error) {
	var res PassResult
	if hours <= 0 {
		return res, fmt.Errorf("%w: hours must be positive", sigerr.ErrInvalidArgument)
	}
	source, err := s.repos.Sources.GetByID(ctx, nil, sourceID)
	if err != nil {
		return res, err
	}

	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	posts, err := s.fetch(ctx, source, &cutoff)
	if err != nil {
		return res, err
	}

	res.Sources = 1
	for _, post := range posts {
		res.ItemsSeen++
		kept, card, err := s.processItem(ctx, source, post)
		if err != nil {
			s.log.Warn("backfill item failed", "source_id", source.ID, "external_id", post.ExternalID, "error", err)
			continue
		}
		if kept {
			res.ItemsKept++
		}
		if card {
			res.CardsCreated++
		}
	}
	return res, nil
}

// ReprocessCards retries extraction for quality items that still lack a
// card, e.g. after the LLM provider was down or the prompt changed.
func (s *Service) ReprocessCards(ctx context.Context, limit int) (int, error) {
	if s.extractor == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}
	items, err := s.repos.Items.ListMissingCards(ctx, nil, s.cfg.Quality.MinQualityScore, limit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, item := range items {
		comments, err := s.repos.Comments.GetByItemID(ctx, nil, item.ID)
		if err != nil {
			s.log.Warn("load comments failed", "item_id", item.ID, "error", err)
			continue
		}
		var bodies []string
		for _, c := range comments {
			if len(bodies) >= maxCardComments {
				break
			}
			bodies = append(bodies, c.Body)
		}

		card := s.extractor.Extract(ctx, strategy.ExtractInput{
			Title:     item.Title,
			Body:      item.Body,
			Comments:  bodies,
			Permalink: item.Permalink,
		})
		if card == nil {
			continue
		}
		card.ItemID = item.ID
		ok, err := s.repos.Cards.Create(ctx, nil, card)
		if err != nil {
			s.log.Warn("card create failed", "item_id", item.ID, "error", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}
