package viral

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gamesignal/gamesignal-backend/internal/clients/redisbus"
	"github.com/gamesignal/gamesignal-backend/internal/config"
	intelrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/intel"
	socialrepo "github.com/gamesignal/gamesignal-backend/internal/data/repos/social"
	inteltypes "github.com/gamesignal/gamesignal-backend/internal/domain/intel"
	socialtypes "github.com/gamesignal/gamesignal-backend/internal/domain/social"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

const (
	lockTaskName = "viral_scanner"
	lockTTL      = time.Hour
	maxHookLen   = 200

	likesMultiplier    = 5
	commentsMultiplier = 3
	viewsMultiplier    = 5
)

// Baseline is an account's rolling engagement profile.
type Baseline struct {
	MedianLikes      float64
	MedianComments   float64
	MedianViews      float64
	HasViewsMedian   bool
	MedianEngagement float64
	Posts            int
}

// ScanResult summarizes one detector run.
type ScanResult struct {
	Status     string // "completed" | "skipped"
	Accounts   int
	Candidates int
	Accepted   int
	Created    int
	Updated    int
	Unchanged  int
}

// Detector finds posts whose engagement dwarfs their account's median. Runs
// are singleton across the fleet via the viral_scanner task lock.
type Detector struct {
	unified  socialrepo.UnifiedPostRepo
	outliers intelrepo.ViralOutlierRepo
	locks    intelrepo.TaskLockRepo
	bus      redisbus.Bus
	cfg      config.ViralConfig
	log      *logger.Logger

	owner string
	now   func() time.Time
}

func NewDetector(
	unified socialrepo.UnifiedPostRepo,
	outliers intelrepo.ViralOutlierRepo,
	locks intelrepo.TaskLockRepo,
	bus redisbus.Bus,
	cfg config.ViralConfig,
	baseLog *logger.Logger,
) *Detector {
	return &Detector{
		unified:  unified,
		outliers: outliers,
		locks:    locks,
		bus:      bus,
		cfg:      cfg,
		log:      baseLog.With("component", "ViralDetector"),
		owner:    fmt.Sprintf("worker-%d", os.Getpid()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scan computes account baselines over the median window, evaluates every
// post in the viral window, and upserts the accepted outliers. A held lock
// means another worker is mid-scan; the run reports "skipped".
func (d *Detector) Scan(ctx context.Context) (ScanResult, error) {
	res := ScanResult{Status: "skipped"}

	ctx, span := otel.Tracer("gamesignal/viral").Start(ctx, "viral.scan",
		trace.WithAttributes(attribute.String("lock_owner", d.owner)))
	defer span.End()

	acquired, err := d.locks.Acquire(ctx, nil, lockTaskName, d.owner, lockTTL)
	if err != nil {
		return res, fmt.Errorf("acquire scanner lock: %w", err)
	}
	if !acquired {
		d.log.Info("scan skipped, lock held elsewhere")
		return res, nil
	}
	defer func() {
		if err := d.locks.Release(ctx, nil, lockTaskName, d.owner); err != nil {
			d.log.Warn("lock release failed", "error", err)
		}
	}()

	now := d.now()
	posts, err := d.unified.ListSince(ctx, nil, now.AddDate(0, 0, -d.cfg.MedianWindowDays))
	if err != nil {
		return res, fmt.Errorf("load unified posts: %w", err)
	}

	baselines := ComputeBaselines(posts, d.cfg.MinPosts)
	res.Accounts = len(baselines)

	candidateStart := now.AddDate(0, 0, -d.cfg.WindowDays)
	expiresAt := now.AddDate(0, 0, d.cfg.ExpiryDays)

	for _, post := range posts {
		if post.PostedAt.Before(candidateStart) {
			continue
		}
		baseline, ok := baselines[accountKey(post)]
		if !ok {
			continue
		}
		res.Candidates++

		verdict := Evaluate(post, baseline, d.cfg)
		if !verdict.Accepted {
			continue
		}
		res.Accepted++

		outcome, err := d.outliers.Upsert(ctx, nil, &inteltypes.ViralOutlier{
			SourceTable:      post.SourceTable,
			SourceID:         post.SourceID,
			Multiplier:       verdict.Tier,
			MedianEngagement: baseline.MedianEngagement,
			ActualEngagement: verdict.Engagement,
			AvailableCount:   verdict.Available,
			SupportCount:     verdict.Support,
			Hook:             Hook(post.Content),
			Platform:         post.Platform,
			Username:         post.Username,
			AnalyzedAt:       now,
			ExpiresAt:        expiresAt,
		})
		if err != nil {
			d.log.Warn("outlier upsert failed",
				"source_table", post.SourceTable, "source_id", post.SourceID, "error", err)
			continue
		}
		switch outcome {
		case intelrepo.OutcomeCreated:
			res.Created++
		case intelrepo.OutcomeUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
		if d.bus != nil && outcome != intelrepo.OutcomeUnchanged {
			d.publish(ctx, post, verdict, now)
		}
	}

	res.Status = "completed"
	d.log.Info("scan complete",
		"accounts", res.Accounts, "candidates", res.Candidates,
		"accepted", res.Accepted, "created", res.Created,
		"updated", res.Updated, "unchanged", res.Unchanged)
	return res, nil
}

func (d *Detector) publish(ctx context.Context, post *socialtypes.UnifiedPost, verdict Verdict, now time.Time) {
	event := redisbus.Event{
		Kind: "viral_outlier",
		Payload: map[string]any{
			"source_table":      post.SourceTable,
			"source_id":         post.SourceID,
			"platform":          post.Platform,
			"username":          post.Username,
			"multiplier":        verdict.Tier,
			"actual_engagement": verdict.Engagement,
			"hook":              Hook(post.Content),
		},
		EmittedAt: now,
	}
	if err := d.bus.Publish(ctx, event); err != nil {
		d.log.Warn("outlier publish failed", "source_id", post.SourceID, "error", err)
	}
}

// Cleanup sweeps expired outlier rows.
func (d *Detector) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := d.outliers.DeleteExpired(ctx, nil, d.now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		d.log.Info("expired outliers deleted", "count", deleted)
	}
	return deleted, nil
}

func accountKey(post *socialtypes.UnifiedPost) string {
	return post.Platform + "\x00" + post.Username
}

// ComputeBaselines builds per-account medians over the supplied posts.
// Accounts with too few posts or a non-positive engagement median are
// excluded, so they can never contribute outliers.
func ComputeBaselines(posts []*socialtypes.UnifiedPost, minPosts int) map[string]Baseline {
	type acc struct {
		likes, comments, engagement []float64
		views                       []float64
	}
	accounts := map[string]*acc{}
	for _, post := range posts {
		key := accountKey(post)
		a, ok := accounts[key]
		if !ok {
			a = &acc{}
			accounts[key] = a
		}
		a.likes = append(a.likes, float64(post.Likes))
		a.comments = append(a.comments, float64(post.Comments))
		a.engagement = append(a.engagement, float64(post.Likes+post.Comments))
		if post.Views != nil {
			a.views = append(a.views, float64(*post.Views))
		}
	}

	out := make(map[string]Baseline, len(accounts))
	for key, a := range accounts {
		if len(a.engagement) < minPosts {
			continue
		}
		baseline := Baseline{
			MedianLikes:      Median(a.likes),
			MedianComments:   Median(a.comments),
			MedianEngagement: Median(a.engagement),
			Posts:            len(a.engagement),
		}
		if baseline.MedianEngagement <= 0 {
			continue
		}
		if len(a.views) > 0 {
			baseline.MedianViews = Median(a.views)
			baseline.HasViewsMedian = true
		}
		out[key] = baseline
	}
	return out
}

// Median is the 50th percentile; even-length inputs average the middle pair.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Verdict is the full evaluation of one post against its baseline.
type Verdict struct {
	Accepted   bool
	Tier       int
	Engagement int
	Available  int
	Support    int
}

// Tier maps the engagement ratio to the coarse multiplier bucket. A
// non-positive median yields tier 0, not infinity.
func Tier(engagement int, medianEngagement float64) int {
	if medianEngagement <= 0 {
		return 0
	}
	ratio := float64(engagement) / medianEngagement
	switch {
	case ratio >= 100:
		return 100
	case ratio >= 50:
		return 50
	case ratio >= 10:
		return 10
	case ratio >= 5:
		return 5
	default:
		return 0
	}
}

// Evaluate applies the per-metric outlier tests and the acceptance rule.
func Evaluate(post *socialtypes.UnifiedPost, baseline Baseline, cfg config.ViralConfig) Verdict {
	v := Verdict{
		Engagement: post.Likes + post.Comments,
		Available:  2, // likes and comments are always reported
	}
	if post.Views != nil {
		v.Available = 3
	}

	likesOutlier := float64(post.Likes) >= likesMultiplier*maxf(baseline.MedianLikes, 1) &&
		post.Likes >= cfg.LikesFloor
	commentsOutlier := float64(post.Comments) >= commentsMultiplier*maxf(baseline.MedianComments, 1) &&
		post.Comments >= cfg.CommentsFloor
	viewsOutlier := false
	if post.Views != nil {
		viewsOutlier = float64(*post.Views) >= viewsMultiplier*maxf(baseline.MedianViews, 1) &&
			*post.Views >= cfg.ViewsFloor
	}

	if likesOutlier {
		v.Support++
	}
	if commentsOutlier {
		v.Support++
	}
	if viewsOutlier {
		v.Support++
	}

	v.Tier = Tier(v.Engagement, baseline.MedianEngagement)
	if v.Tier < 5 || v.Engagement < cfg.MinEngagement {
		return v
	}

	switch {
	case v.Available >= 3 && v.Support >= 2:
		v.Accepted = true
	case v.Available == 2 && v.Support >= 2:
		v.Accepted = true
	case v.Available == 1 && v.Support == 1 && v.Engagement >= 500:
		v.Accepted = true
	}
	return v
}

// Hook is the first line of the content, bounded, for downstream prompts.
func Hook(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxHookLen {
		line = line[:maxHookLen]
	}
	return line
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
