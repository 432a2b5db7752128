package contextagg

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/gamesignal/gamesignal-backend/internal/domain/social"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

const (
	docChunkCap  = 3
	hookCap      = 3
	hashtagCap   = 5
	cardCap      = 2
	topicCap     = 3
	viralHookCap = 5

	hookWindow       = 14 * 24 * time.Hour
	postingDayWindow = 28 * 24 * time.Hour
	topicWindow      = 7 * 24 * time.Hour

	minCardConfidence  = 0.7
	minViralMultiplier = 10
)

// CardSummary is a strategy card projected into the content context.
type CardSummary struct {
	Tactic     string   `json:"tactic"`
	Niche      string   `json:"niche"`
	Platforms  []string `json:"platforms"`
	Confidence float64  `json:"confidence"`
}

// ViralHook is one shared viral-outlier hook.
type ViralHook struct {
	Hook       string `json:"hook"`
	Username   string `json:"username"`
	Multiplier int    `json:"multiplier"`
	Engagement int    `json:"engagement"`
}

// ContentContext is everything the content generator needs about a tenant,
// assembled in one read.
type ContentContext struct {
	GameTitle    string   `json:"game_title"`
	Genre        string   `json:"genre"`
	Tone         string   `json:"tone"`
	Audience     string   `json:"audience"`
	KeyMechanics []string `json:"key_mechanics"`

	DocChunks []string `json:"doc_chunks"`

	TopHooks          []string `json:"top_hooks"`
	TopHashtags       []string `json:"top_hashtags"`
	CompetitorHandles []string `json:"competitor_handles"`
	BestPostingDay    string   `json:"best_posting_day"`
	AvgEngagement     float64  `json:"avg_engagement"`

	StrategyCards  []CardSummary `json:"strategy_cards"`
	TrendingTopics []string      `json:"trending_topics"`
	ViralHooks     []ViralHook   `json:"viral_hooks"`

	Confidence string `json:"confidence"` // "high" | "medium" | "low"
}

// Service assembles a ContentContext. Every query is tenant-scoped except
// the genre-matched viral-hook lookup, which deliberately shares hooks
// across tenants in the same niche.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(db *gorm.DB, baseLog *logger.Logger) *Service {
	return &Service{db: db, log: baseLog.With("component", "ContextAggregator")}
}

func (s *Service) Aggregate(ctx context.Context, ownerID, groupID uuid.UUID, platform string) (*ContentContext, error) {
	out := &ContentContext{}

	game, err := s.gameContext(ctx, ownerID, groupID)
	if err != nil {
		return nil, err
	}
	if game != nil {
		out.GameTitle = game.GameTitle
		out.Genre = game.PrimaryGenre
		out.Tone = game.Tone
		out.Audience = game.Audience
		if err := json.Unmarshal(game.KeyMechanics, &out.KeyMechanics); err != nil {
			out.KeyMechanics = nil
		}
	}

	if out.DocChunks, err = s.docChunks(ctx, groupID, platform); err != nil {
		return nil, err
	}

	hooks, err := s.hookRows(ctx, ownerID, groupID)
	if err != nil {
		return nil, err
	}
	out.TopHooks, out.TopHashtags, out.CompetitorHandles, out.AvgEngagement = digestHooks(hooks)

	if out.BestPostingDay, err = s.bestPostingDay(ctx, ownerID, groupID); err != nil {
		return nil, err
	}
	if out.StrategyCards, err = s.strategyCards(ctx, ownerID, groupID); err != nil {
		return nil, err
	}
	if out.TrendingTopics, err = s.trendingTopics(ctx, ownerID, groupID); err != nil {
		return nil, err
	}

	out.ViralHooks, err = s.viralHooks(ctx, ownerID, groupID, platform, out.Genre)
	if err != nil {
		if isMissingTable(err) {
			s.log.Warn("viral_outliers unavailable, continuing without viral hooks", "error", err)
			out.ViralHooks = nil
		} else {
			return nil, err
		}
	}

	out.Confidence = confidenceLabel(out)
	return out, nil
}

func (s *Service) gameContext(ctx context.Context, ownerID, groupID uuid.UUID) (*types.GameContext, error) {
	var game types.GameContext
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND group_id = ?", ownerID, groupID).
		Order("created_at DESC").
		First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// docChunks ranks the tenant's ready workshop chunks against a fixed
// platform-flavored marketing query.
func (s *Service) docChunks(ctx context.Context, groupID uuid.UUID, platform string) ([]string, error) {
	query := platform + " marketing social media content"
	var chunks []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT wc.text
		FROM workshop_chunks wc
		JOIN workshop_documents wd ON wd.id = wc.document_id
		WHERE wd.group_id = ?
		  AND wd.status = 'ready'
		  AND to_tsvector('english', wc.text) @@ plainto_tsquery('english', ?)
		ORDER BY ts_rank(to_tsvector('english', wc.text), plainto_tsquery('english', ?)) DESC
		LIMIT ?
	`, groupID, query, query, docChunkCap).Scan(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

type hookRow struct {
	Username string
	Content  string
	Likes    int
	Hashtags []byte
}

func (s *Service) hookRows(ctx context.Context, ownerID, groupID uuid.UUID) ([]hookRow, error) {
	var rows []hookRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT cp.username, cp.content, cp.likes, cp.hashtags
		FROM competitor_posts cp
		JOIN user_competitors uc ON uc.competitor_id = cp.competitor_id
		WHERE uc.owner_id = ? AND uc.group_id = ?
		  AND cp.posted_at >= ?
		ORDER BY cp.likes DESC
	`, ownerID, groupID, time.Now().UTC().Add(-hookWindow)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// digestHooks derives the hook-based fields from the 14-day competitor-post
// rows: the top first-lines, the hashtag frequency ranking, the deduped
// handle list, and the mean likes.
func digestHooks(rows []hookRow) (hooks, hashtags, handles []string, avgEngagement float64) {
	freq := map[string]int{}
	seenHandle := map[string]bool{}
	totalLikes := 0

	for _, row := range rows {
		totalLikes += row.Likes
		if len(hooks) < hookCap {
			if line := firstLine(row.Content); line != "" {
				hooks = append(hooks, line)
			}
		}
		if !seenHandle[row.Username] && row.Username != "" {
			seenHandle[row.Username] = true
			handles = append(handles, row.Username)
		}
		var tags []string
		if err := json.Unmarshal(row.Hashtags, &tags); err == nil {
			for _, tag := range tags {
				tag = strings.ToLower(strings.TrimSpace(tag))
				if tag != "" {
					freq[tag]++
				}
			}
		}
	}

	for tag := range freq {
		hashtags = append(hashtags, tag)
	}
	// Frequency desc, lexical asc on ties.
	sort.Slice(hashtags, func(i, j int) bool {
		if freq[hashtags[i]] != freq[hashtags[j]] {
			return freq[hashtags[i]] > freq[hashtags[j]]
		}
		return hashtags[i] < hashtags[j]
	})
	if len(hashtags) > hashtagCap {
		hashtags = hashtags[:hashtagCap]
	}
	if len(rows) > 0 {
		avgEngagement = float64(totalLikes) / float64(len(rows))
	}
	return hooks, hashtags, handles, avgEngagement
}

var dayNames = map[int]string{
	0: "Sunday", 1: "Monday", 2: "Tuesday", 3: "Wednesday",
	4: "Thursday", 5: "Friday", 6: "Saturday",
}

func (s *Service) bestPostingDay(ctx context.Context, ownerID, groupID uuid.UUID) (string, error) {
	type row struct {
		Dow      int
		AvgLikes float64
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(`
		SELECT EXTRACT(DOW FROM cp.posted_at)::int AS dow, AVG(cp.likes) AS avg_likes
		FROM competitor_posts cp
		JOIN user_competitors uc ON uc.competitor_id = cp.competitor_id
		WHERE uc.owner_id = ? AND uc.group_id = ?
		  AND cp.posted_at >= ?
		GROUP BY dow
		ORDER BY avg_likes DESC
		LIMIT 1
	`, ownerID, groupID, time.Now().UTC().Add(-postingDayWindow)).Scan(&rows).Error
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return dayNames[rows[0].Dow], nil
}

func (s *Service) strategyCards(ctx context.Context, ownerID, groupID uuid.UUID) ([]CardSummary, error) {
	type row struct {
		Tactic          string
		Niche           string
		PlatformTargets []byte
		Confidence      float64
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(`
		SELECT sc.tactic, sc.niche, sc.platform_targets, sc.confidence
		FROM strategy_cards sc
		JOIN reddit_items ri ON ri.id = sc.item_id
		JOIN reddit_sources rs ON rs.id = ri.source_id
		WHERE rs.owner_id = ? AND rs.group_id = ?
		  AND sc.confidence >= ?
		ORDER BY sc.confidence DESC
		LIMIT ?
	`, ownerID, groupID, minCardConfidence, cardCap).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]CardSummary, 0, len(rows))
	for _, r := range rows {
		card := CardSummary{Tactic: r.Tactic, Niche: r.Niche, Confidence: r.Confidence}
		if err := json.Unmarshal(r.PlatformTargets, &card.Platforms); err != nil {
			card.Platforms = nil
		}
		out = append(out, card)
	}
	return out, nil
}

func (s *Service) trendingTopics(ctx context.Context, ownerID, groupID uuid.UUID) ([]string, error) {
	var titles []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT ri.title
		FROM reddit_items ri
		JOIN reddit_sources rs ON rs.id = ri.source_id
		WHERE rs.owner_id = ? AND rs.group_id = ?
		  AND ri.created_utc >= ?
		ORDER BY ri.score DESC
		LIMIT ?
	`, ownerID, groupID, time.Now().UTC().Add(-topicWindow), topicCap).Scan(&titles).Error
	if err != nil {
		return nil, err
	}
	return titles, nil
}

// viralHooks first searches the whole niche: every tenant whose game
// context shares this genre contributes its tracked competitors' live
// outliers. Only when the niche search finds nothing does it fall back to
// the tenant's own competitors.
func (s *Service) viralHooks(ctx context.Context, ownerID, groupID uuid.UUID, platform, genre string) ([]ViralHook, error) {
	if genre != "" {
		hooks, err := s.nicheViralHooks(ctx, platform, genre)
		if err != nil {
			return nil, err
		}
		if len(hooks) > 0 {
			return hooks, nil
		}
	}
	return s.tenantViralHooks(ctx, ownerID, groupID, platform)
}

func (s *Service) nicheViralHooks(ctx context.Context, platform, genre string) ([]ViralHook, error) {
	var hooks []ViralHook
	err := s.db.WithContext(ctx).Raw(`
		SELECT vo.hook, vo.username, vo.multiplier, vo.actual_engagement AS engagement
		FROM viral_outliers vo
		WHERE vo.platform = ?
		  AND vo.expires_at > now()
		  AND vo.multiplier >= ?
		  AND (vo.platform, vo.username) IN (
		      SELECT p.platform, p.username
		      FROM competitor_profiles p
		      JOIN user_competitors uc ON uc.competitor_id = p.id
		      WHERE uc.group_id IN (
		          SELECT gc.group_id FROM game_contexts gc
		          WHERE gc.primary_genre ILIKE ?
		      )
		  )
		ORDER BY vo.multiplier DESC, vo.actual_engagement DESC
		LIMIT ?
	`, platform, minViralMultiplier, "%"+genre+"%", viralHookCap).Scan(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func (s *Service) tenantViralHooks(ctx context.Context, ownerID, groupID uuid.UUID, platform string) ([]ViralHook, error) {
	var hooks []ViralHook
	err := s.db.WithContext(ctx).Raw(`
		SELECT vo.hook, vo.username, vo.multiplier, vo.actual_engagement AS engagement
		FROM viral_outliers vo
		WHERE vo.platform = ?
		  AND vo.expires_at > now()
		  AND vo.multiplier >= ?
		  AND (vo.platform, vo.username) IN (
		      SELECT p.platform, p.username
		      FROM competitor_profiles p
		      JOIN user_competitors uc ON uc.competitor_id = p.id
		      WHERE uc.owner_id = ? AND uc.group_id = ?
		  )
		ORDER BY vo.multiplier DESC, vo.actual_engagement DESC
		LIMIT ?
	`, platform, minViralMultiplier, ownerID, groupID, viralHookCap).Scan(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

// confidenceLabel scores how much grounding the context carries.
func confidenceLabel(c *ContentContext) string {
	points := 0
	if c.GameTitle != "" {
		points += 2
	}
	if len(c.DocChunks) > 0 {
		points++
	}
	if len(c.TopHooks) >= 2 {
		points += 2
	}
	if len(c.StrategyCards) > 0 {
		points++
	}
	if len(c.ViralHooks) > 0 {
		points += 2
	}
	switch {
	case points >= 5:
		return "high"
	case points >= 3:
		return "medium"
	default:
		return "low"
	}
}

func firstLine(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// isMissingTable matches postgres undefined_table (42P01) so a deployment
// without the viral detector still gets a context.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	return strings.Contains(text, "42P01") || strings.Contains(text, "does not exist")
}
