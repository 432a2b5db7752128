package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/gamesignal/gamesignal-backend/internal/config"
	socialrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/social"
	types "github.com/gamesignal/gamesignal-backend/internal/domain/social"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/scrape"
	"github.com/gamesignal/gamesignal-backend/internal/scrape/proxy"
)

const (
	candidateWindow    = 28 * 24 * time.Hour
	seedFrequency      = 999
	maxInitAttempts    = 3
	maxProxyRotations  = 25
	iterationCap       = 10
	interIterationWait = 10 * time.Second
)

// ProxySource hands out proxies for session construction. *proxy.Pool
// satisfies it.
type ProxySource interface {
	GetWorkingProxy(ctx context.Context) (string, error)
}

// SessionFactory builds scraper sessions. *scrape.DriverPolicy satisfies it.
type SessionFactory interface {
	New(ctx context.Context, platform, proxyURL string) (scrape.Scraper, error)
}

// Request scopes one discovery run.
type Request struct {
	OwnerID  uuid.UUID
	GroupID  uuid.UUID
	Platform string

	// Seeds are operator-supplied hashtags injected at the top of the
	// candidate ranking.
	Seeds []string

	// Proxy: "" auto-selects from the pool, proxy.Direct disables proxies,
	// anything else is used verbatim for the first attempt.
	Proxy string

	MaxHashtags   int // 0 → config default
	MaxPosts      int // 0 → config default
	MaxIterations int // recursive mode only; 0 → config default
}

// IterationResult is the outcome of one discovery sweep.
type IterationResult struct {
	Hashtags  []string
	Succeeded int
	Failed    int
	NewPosts  int
}

// RecursiveResult aggregates a recursive run.
type RecursiveResult struct {
	Iterations int
	Succeeded  int
	NewPosts   int
}

// Engine grows the scraped-hashtag set for a tenant by mining hashtags out
// of competitor posts and previously scraped posts, then scraping the
// highest-frequency ones that have not been scraped yet.
type Engine struct {
	hashtagPosts    socialrepo.HashtagPostRepo
	competitorPosts socialrepo.CompetitorPostRepo
	sessions        SessionFactory
	proxies         ProxySource
	classifier      *scrape.Classifier
	cfg             config.DiscoveryConfig
	log             *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewEngine(
	hashtagPosts socialrepo.HashtagPostRepo,
	competitorPosts socialrepo.CompetitorPostRepo,
	sessions SessionFactory,
	proxies ProxySource,
	classifier *scrape.Classifier,
	cfg config.DiscoveryConfig,
	baseLog *logger.Logger,
) *Engine {
	if classifier == nil {
		classifier = scrape.NewClassifier()
	}
	return &Engine{
		hashtagPosts:    hashtagPosts,
		competitorPosts: competitorPosts,
		sessions:        sessions,
		proxies:         proxies,
		classifier:      classifier,
		cfg:             cfg,
		log:             baseLog.With("component", "HashtagDiscovery"),
		sleep:           sleepCtx,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DiscoverOnce runs a single sweep: rank unscraped hashtags, scrape each,
// persist the posts. A failing hashtag is logged and skipped.
func (e *Engine) DiscoverOnce(ctx context.Context, req Request) (IterationResult, error) {
	var res IterationResult

	tags, err := e.unscrapedHashtags(ctx, req)
	if err != nil {
		return res, err
	}
	res.Hashtags = tags

	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		persisted, err := e.scrapeHashtag(ctx, req, tag)
		if err != nil {
			res.Failed++
			e.log.Warn("hashtag scrape failed", "platform", req.Platform, "hashtag", tag, "error", err)
			continue
		}
		res.Succeeded++
		res.NewPosts += persisted
	}
	e.log.Info("discovery sweep complete",
		"platform", req.Platform, "hashtags", len(tags),
		"succeeded", res.Succeeded, "new_posts", res.NewPosts)
	return res, nil
}

// DiscoverRecursive repeats sweeps until the iteration budget runs out or a
// sweep scrapes nothing new. Each sweep's posts feed the next sweep's
// candidate set.
func (e *Engine) DiscoverRecursive(ctx context.Context, req Request) (RecursiveResult, error) {
	var res RecursiveResult

	iterations := req.MaxIterations
	if iterations <= 0 {
		iterations = e.cfg.MaxIterations
	}
	if iterations > iterationCap {
		e.log.Warn("iteration budget clamped", "requested", iterations, "cap", iterationCap)
		iterations = iterationCap
	}

	for i := 0; i < iterations; i++ {
		if i > 0 {
			if err := e.sleep(ctx, interIterationWait); err != nil {
				return res, err
			}
			// Seeds only apply to the first sweep; later sweeps run purely
			// on what earlier sweeps discovered.
			req.Seeds = nil
		}
		iter, err := e.DiscoverOnce(ctx, req)
		if err != nil {
			return res, err
		}
		res.Iterations++
		res.Succeeded += iter.Succeeded
		res.NewPosts += iter.NewPosts
		if iter.Succeeded == 0 {
			break
		}
	}
	return res, nil
}

// unscrapedHashtags unions competitor-post and scraped-post hashtag
// frequencies over the 28-day window, drops already-scraped tags, and
// returns the top candidates by frequency (ties broken lexically so runs
// over identical data rank identically).
func (e *Engine) unscrapedHashtags(ctx context.Context, req Request) ([]string, error) {
	since := e.now().Add(-candidateWindow)

	fromCompetitors, err := e.competitorPosts.HashtagFrequencies(ctx, nil, req.OwnerID, req.GroupID, since)
	if err != nil {
		return nil, fmt.Errorf("competitor hashtag frequencies: %w", err)
	}
	fromScraped, err := e.hashtagPosts.HashtagFrequencies(ctx, nil, req.OwnerID, req.GroupID, req.Platform, since)
	if err != nil {
		return nil, fmt.Errorf("scraped hashtag frequencies: %w", err)
	}
	scraped, err := e.hashtagPosts.ScrapedHashtags(ctx, nil, req.Platform)
	if err != nil {
		return nil, fmt.Errorf("scraped hashtag set: %w", err)
	}

	freq := map[string]int{}
	for tag, n := range fromCompetitors {
		freq[strings.ToLower(tag)] += n
	}
	for tag, n := range fromScraped {
		freq[strings.ToLower(tag)] += n
	}
	for _, seed := range req.Seeds {
		seed = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(seed, "#")))
		if seed != "" {
			freq[seed] = seedFrequency
		}
	}
	for tag := range scraped {
		delete(freq, tag)
	}

	tags := make([]string, 0, len(freq))
	for tag := range freq {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if freq[tags[i]] != freq[tags[j]] {
			return freq[tags[i]] > freq[tags[j]]
		}
		return tags[i] < tags[j]
	})

	limit := req.MaxHashtags
	if limit <= 0 {
		limit = e.cfg.MaxHashtagsPerIteration
	}
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

// scrapeHashtag runs one hashtag to completion: session init with proxy
// rotation, the platform scrape call with TikTok proxy-failure rotation,
// and persistence. Returns the number of newly stored posts.
func (e *Engine) scrapeHashtag(ctx context.Context, req Request, tag string) (int, error) {
	maxPosts := req.MaxPosts
	if maxPosts <= 0 {
		maxPosts = e.cfg.MaxPostsPerHashtag
	}

	scraper, err := e.newSession(ctx, req, req.Proxy)
	if err != nil {
		return 0, err
	}
	defer func() {
		if scraper != nil {
			scraper.Close()
		}
	}()

	rotations := 0
	for {
		posts, err := scraper.ScrapeHashtag(ctx, tag, maxPosts)

		proxyFailure := false
		if err != nil {
			if req.Platform == "tiktok" && e.classifier.IsProxyFailure(err) {
				proxyFailure = true
			} else {
				return 0, err
			}
		} else if len(posts) == 0 && req.Platform == "tiktok" {
			// A flagged exit IP gets an empty page rather than an error.
			proxyFailure = true
		}

		if !proxyFailure {
			return e.persist(ctx, req, tag, posts)
		}

		rotations++
		if rotations >= maxProxyRotations {
			return 0, fmt.Errorf("hashtag %q: proxy rotation budget exhausted after %d attempts", tag, rotations)
		}
		scraper.Close()
		scraper = nil
		scraper, err = e.newSession(ctx, req, "")
		if err != nil {
			return 0, err
		}
	}
}

// newSession builds a scraper, retrying with a fresh proxy on each failed
// attempt. preferred applies to the first attempt only.
func (e *Engine) newSession(ctx context.Context, req Request, preferred string) (scrape.Scraper, error) {
	var lastErr error
	for attempt := 0; attempt < maxInitAttempts; attempt++ {
		proxyURL, err := e.pickProxy(ctx, req, preferred, attempt)
		if err != nil {
			return nil, err
		}
		scraper, err := e.sessions.New(ctx, req.Platform, proxyURL)
		if err == nil {
			return scraper, nil
		}
		lastErr = err
		e.log.Warn("scraper init failed", "platform", req.Platform, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("scraper init: %w", lastErr)
}

func (e *Engine) pickProxy(ctx context.Context, req Request, preferred string, attempt int) (string, error) {
	if req.Proxy == proxy.Direct {
		return "", nil
	}
	if attempt == 0 && preferred != "" && preferred != proxy.Direct {
		return preferred, nil
	}
	if e.proxies == nil {
		return "", nil
	}
	return e.proxies.GetWorkingProxy(ctx)
}

func (e *Engine) persist(ctx context.Context, req Request, tag string, posts []scrape.Post) (int, error) {
	now := e.now()
	persisted := 0
	for _, post := range posts {
		hashtags, err := json.Marshal(lowered(post.Hashtags))
		if err != nil {
			hashtags = []byte("[]")
		}
		raw, err := json.Marshal(post.Raw)
		if err != nil || post.Raw == nil {
			raw = []byte("{}")
		}
		sum := sha256.Sum256([]byte(post.Caption))

		inserted, err := e.hashtagPosts.Upsert(ctx, nil, &types.HashtagPost{
			OwnerID:     req.OwnerID,
			GroupID:     req.GroupID,
			Platform:    req.Platform,
			PostID:      post.PostID,
			Hashtag:     tag,
			Username:    post.Username,
			URL:         post.URL,
			Caption:     post.Caption,
			CaptionHash: hex.EncodeToString(sum[:]),
			Likes:       post.Likes,
			Comments:    post.Comments,
			Views:       post.Views,
			Hashtags:    datatypes.JSON(hashtags),
			RawJSON:     datatypes.JSON(raw),
			PostedAt:    post.PostedAt.UTC(),
			ScrapedAt:   now,
		})
		if err != nil {
			e.log.Warn("hashtag post upsert failed",
				"platform", req.Platform, "post_id", post.PostID, "error", err)
			continue
		}
		if inserted {
			persisted++
		}
	}
	return persisted, nil
}

func lowered(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "#")))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
