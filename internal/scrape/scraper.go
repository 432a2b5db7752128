package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

// Post is one scraped social post, platform-agnostic. Views stays nil on
// platforms that do not expose a view counter.
type Post struct {
	PostID   string
	Username string
	URL      string
	Caption  string
	Hashtags []string
	Likes    int
	Comments int
	Views    *int
	PostedAt time.Time
	Raw      map[string]any
}

// Scraper is one live browser/API session against a platform, bound to a
// single proxy for its lifetime.
type Scraper interface {
	ScrapeProfile(ctx context.Context, username string, maxPosts int) ([]Post, error)
	ScrapeHashtag(ctx context.Context, tag string, maxPosts int) ([]Post, error)
	Close() error
}

// VideoScraper is an optional capability; callers type-assert before use.
type VideoScraper interface {
	ScrapeVideo(ctx context.Context, url string) (*Post, error)
}

// Factory builds a scraper session. proxyURL "" means direct connection.
type Factory func(ctx context.Context, platform, proxyURL string) (Scraper, error)

// DriverPolicy picks the scraper implementation: the primary driver first,
// and on construction failure the explicitly configured fallback. There is
// no silent auto-detection; the swap is logged.
type DriverPolicy struct {
	Primary  Factory
	Fallback Factory
	log      *logger.Logger
}

func NewDriverPolicy(primary, fallback Factory, baseLog *logger.Logger) *DriverPolicy {
	return &DriverPolicy{
		Primary:  primary,
		Fallback: fallback,
		log:      baseLog.With("component", "DriverPolicy"),
	}
}

// New constructs a session with the primary driver, swapping to the
// fallback only when the primary cannot start at all.
func (p *DriverPolicy) New(ctx context.Context, platform, proxyURL string) (Scraper, error) {
	scraper, err := p.Primary(ctx, platform, proxyURL)
	if err == nil {
		return scraper, nil
	}
	if p.Fallback == nil {
		return nil, err
	}
	p.log.Warn("primary scraper driver failed, swapping to fallback",
		"platform", platform, "error", err)
	scraper, fbErr := p.Fallback(ctx, platform, proxyURL)
	if fbErr != nil {
		return nil, fmt.Errorf("primary: %v; fallback: %w", err, fbErr)
	}
	return scraper, nil
}
