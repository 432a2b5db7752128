package config

import (
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/platform/envutil"
)

// Config aggregates every knob the pipelines read from the environment.
// Load applies defaults; Sanitized renders the summary the `config` command
// prints (secrets elided).
type Config struct {
	Quality   QualityConfig
	Spike     SpikeConfig
	Fetch     FetchConfig
	Chunks    ChunkConfig
	LLM       LLMConfig
	Raw       RawConfig
	Viral     ViralConfig
	Discovery DiscoveryConfig
	Listener  ListenerConfig
	Redis     RedisConfig
}

type QualityConfig struct {
	MinQualityScore float64
	MinScore        int
	MinComments     int
	MaxAgeHours     float64

	WeightScore    float64
	WeightComments float64
	WeightRecency  float64
	WeightFlair    float64
	PenaltyNSFW    float64
	PenaltyRemoved float64
}

type SpikeConfig struct {
	FactorThreshold float64
	MinSpikeCount   int
}

type FetchConfig struct {
	DefaultLimit  int
	CommentsLimit int
	CommentsDepth int
	UserAgent     string
}

type ChunkConfig struct {
	MinChars       int
	MaxChars       int
	OverlapPercent int
}

type LLMConfig struct {
	Enabled  bool
	Provider string
	Host     string
	Model    string
	Timeout  time.Duration
}

type RawConfig struct {
	// MaxBytes is informational only; semantic pruning is authoritative.
	MaxBytes int
}

type ViralConfig struct {
	LikesFloor       int
	CommentsFloor    int
	ViewsFloor       int
	MinEngagement    int
	WindowDays       int
	MedianWindowDays int
	MinPosts         int
	ExpiryDays       int
}

type DiscoveryConfig struct {
	MaxHashtagsPerIteration int
	MaxPostsPerHashtag      int
	MaxIterations           int
	ProxyPoolFile           string
	ClassifierFile          string
	ScraperPrimaryURL       string
	ScraperFallbackURL      string
	ScraperTimeout          time.Duration
}

type ListenerConfig struct {
	Concurrency int
}

type RedisConfig struct {
	Addr    string
	Channel string
}

func scraperState(d DiscoveryConfig) string {
	switch {
	case d.ScraperPrimaryURL == "":
		return "disabled"
	case d.ScraperFallbackURL != "":
		return "primary+fallback"
	default:
		return "primary"
	}
}

func Load() Config {
	return Config{
		Quality: QualityConfig{
			MinQualityScore: envutil.Float("MIN_QUALITY_SCORE", 0.3),
			MinScore:        envutil.Int("MIN_SCORE", 5),
			MinComments:     envutil.Int("MIN_COMMENTS", 2),
			MaxAgeHours:     envutil.Float("MAX_AGE_HOURS", 168),
			WeightScore:     envutil.Float("WEIGHT_SCORE", 0.4),
			WeightComments:  envutil.Float("WEIGHT_COMMENTS", 0.3),
			WeightRecency:   envutil.Float("WEIGHT_RECENCY", 0.2),
			WeightFlair:     envutil.Float("WEIGHT_FLAIR", 0.1),
			PenaltyNSFW:     envutil.Float("PENALTY_NSFW", 0.5),
			PenaltyRemoved:  envutil.Float("PENALTY_REMOVED", 1.0),
		},
		Spike: SpikeConfig{
			FactorThreshold: envutil.Float("SPIKE_FACTOR_THRESHOLD", 2.0),
			MinSpikeCount:   envutil.Int("MIN_SPIKE_COUNT", 10),
		},
		Fetch: FetchConfig{
			DefaultLimit:  envutil.Int("DEFAULT_FETCH_LIMIT", 50),
			CommentsLimit: envutil.Int("COMMENTS_FETCH_LIMIT", 10),
			CommentsDepth: envutil.Int("COMMENTS_DEPTH", 1),
			UserAgent:     envutil.String("REDDIT_USER_AGENT", "gamesignal/1.0 (marketing research; contact: ops@gamesignal.dev)"),
		},
		Chunks: ChunkConfig{
			MinChars:       envutil.Int("CHUNK_MIN_CHARS", 1500),
			MaxChars:       envutil.Int("CHUNK_MAX_CHARS", 3000),
			OverlapPercent: envutil.Int("CHUNK_OVERLAP_PERCENT", 12),
		},
		LLM: LLMConfig{
			Enabled:  envutil.Bool("LLM_ENABLED", false),
			Provider: envutil.String("LLM_PROVIDER", "mock"),
			Host:     envutil.String("LLM_HOST", "http://localhost:11434"),
			Model:    envutil.String("LLM_MODEL", "llama3.1:8b"),
			Timeout:  envutil.Duration("LLM_TIMEOUT_SECONDS", 60*time.Second),
		},
		Raw: RawConfig{
			MaxBytes: envutil.Int("RAW_JSON_MAX_BYTES", 32768),
		},
		Viral: ViralConfig{
			LikesFloor:       envutil.Int("VIRAL_LIKES_FLOOR", 50),
			CommentsFloor:    envutil.Int("VIRAL_COMMENTS_FLOOR", 10),
			ViewsFloor:       envutil.Int("VIRAL_VIEWS_FLOOR", 1000),
			MinEngagement:    envutil.Int("VIRAL_MIN_ENGAGEMENT", 100),
			WindowDays:       envutil.Int("VIRAL_WINDOW_DAYS", 3),
			MedianWindowDays: envutil.Int("VIRAL_MEDIAN_WINDOW_DAYS", 30),
			MinPosts:         envutil.Int("VIRAL_MIN_POSTS", 5),
			ExpiryDays:       envutil.Int("VIRAL_EXPIRY_DAYS", 7),
		},
		Discovery: DiscoveryConfig{
			MaxHashtagsPerIteration: envutil.Int("DISCOVERY_MAX_HASHTAGS", 10),
			MaxPostsPerHashtag:      envutil.Int("DISCOVERY_MAX_POSTS", 20),
			MaxIterations:           envutil.Int("DISCOVERY_MAX_ITERATIONS", 3),
			ProxyPoolFile:           envutil.String("PROXY_POOL_FILE", "verified_proxies.json"),
			ClassifierFile:          envutil.String("PROXY_CLASSIFIER_FILE", ""),
			ScraperPrimaryURL:       envutil.String("SCRAPER_PRIMARY_URL", ""),
			ScraperFallbackURL:      envutil.String("SCRAPER_FALLBACK_URL", ""),
			ScraperTimeout:          envutil.Duration("SCRAPER_TIMEOUT_SECONDS", 120*time.Second),
		},
		Listener: ListenerConfig{
			Concurrency: envutil.Int("LISTENER_CONCURRENCY", 4),
		},
		Redis: RedisConfig{
			Addr:    envutil.String("REDIS_ADDR", ""),
			Channel: envutil.String("REDIS_CHANNEL", "gamesignal.signals"),
		},
	}
}

// Sanitized returns the config as a flat map safe to print: connection
// strings and proxy material are summarized, never echoed.
func (c Config) Sanitized() map[string]any {
	redisState := "disabled"
	if c.Redis.Addr != "" {
		redisState = "configured"
	}
	return map[string]any{
		"quality.min_quality_score": c.Quality.MinQualityScore,
		"quality.min_score":         c.Quality.MinScore,
		"quality.min_comments":      c.Quality.MinComments,
		"quality.max_age_hours":     c.Quality.MaxAgeHours,
		"quality.weight_score":      c.Quality.WeightScore,
		"quality.weight_comments":   c.Quality.WeightComments,
		"quality.weight_recency":    c.Quality.WeightRecency,
		"quality.weight_flair":      c.Quality.WeightFlair,
		"quality.penalty_nsfw":      c.Quality.PenaltyNSFW,
		"quality.penalty_removed":   c.Quality.PenaltyRemoved,

		"spike.factor_threshold": c.Spike.FactorThreshold,
		"spike.min_spike_count":  c.Spike.MinSpikeCount,

		"fetch.default_limit":  c.Fetch.DefaultLimit,
		"fetch.comments_limit": c.Fetch.CommentsLimit,
		"fetch.comments_depth": c.Fetch.CommentsDepth,

		"chunks.min_chars":       c.Chunks.MinChars,
		"chunks.max_chars":       c.Chunks.MaxChars,
		"chunks.overlap_percent": c.Chunks.OverlapPercent,

		"llm.enabled":         c.LLM.Enabled,
		"llm.provider":        c.LLM.Provider,
		"llm.model":           c.LLM.Model,
		"llm.timeout_seconds": int(c.LLM.Timeout.Seconds()),

		"raw.max_bytes": c.Raw.MaxBytes,

		"viral.likes_floor":        c.Viral.LikesFloor,
		"viral.comments_floor":     c.Viral.CommentsFloor,
		"viral.views_floor":        c.Viral.ViewsFloor,
		"viral.min_engagement":     c.Viral.MinEngagement,
		"viral.window_days":        c.Viral.WindowDays,
		"viral.median_window_days": c.Viral.MedianWindowDays,
		"viral.min_posts":          c.Viral.MinPosts,
		"viral.expiry_days":        c.Viral.ExpiryDays,

		"discovery.max_hashtags":   c.Discovery.MaxHashtagsPerIteration,
		"discovery.max_posts":      c.Discovery.MaxPostsPerHashtag,
		"discovery.max_iterations": c.Discovery.MaxIterations,
		"discovery.scraper":        scraperState(c.Discovery),

		"listener.concurrency": c.Listener.Concurrency,

		"redis": redisState,
	}
}
