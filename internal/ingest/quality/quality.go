package quality

import (
	"math"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/config"
)

// Input is everything the scorer needs about one item or comment.
type Input struct {
	Score       int
	NumComments int
	CreatedUTC  time.Time
	Now         time.Time
	HasFlair    bool
	NSFW        bool
	Removed     bool
}

// Score computes the bounded engagement-quality score:
// log-damped score and comment components, a linear recency boost that
// zeroes out at MaxAgeHours, a flat flair bonus, and nsfw/removed penalties.
// Rounded to 4 decimals so reruns over unchanged inputs compare equal.
func Score(in Input, cfg config.QualityConfig) float64 {
	scoreComponent := math.Log(1+float64(max(0, in.Score))) * cfg.WeightScore
	commentsComponent := math.Log(1+float64(max(0, in.NumComments))) * cfg.WeightComments

	ageHours := AgeHours(in)
	recencyBoost := 0.0
	if ageHours < cfg.MaxAgeHours {
		recencyBoost = math.Max(0, 1-ageHours/cfg.MaxAgeHours) * cfg.WeightRecency
	}

	flairBonus := 0.0
	if in.HasFlair {
		flairBonus = cfg.WeightFlair
	}

	penalty := 0.0
	if in.NSFW {
		penalty += cfg.PenaltyNSFW
	}
	if in.Removed {
		penalty += cfg.PenaltyRemoved
	}

	q := scoreComponent + commentsComponent + recencyBoost + flairBonus - penalty
	return math.Round(q*10000) / 10000
}

// PassesFilter is the hard gate: removed content never passes, and the item
// must clear the score, comment, age, and quality thresholds.
func PassesFilter(in Input, quality float64, cfg config.QualityConfig) bool {
	if in.Removed {
		return false
	}
	if in.Score < cfg.MinScore {
		return false
	}
	if in.NumComments < cfg.MinComments {
		return false
	}
	if AgeHours(in) > cfg.MaxAgeHours {
		return false
	}
	return quality >= cfg.MinQualityScore
}

// IsHighQuality gates comment fetching only.
func IsHighQuality(quality float64, cfg config.QualityConfig) bool {
	return quality >= 2*cfg.MinQualityScore
}

func AgeHours(in Input) float64 {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	age := now.Sub(in.CreatedUTC).Hours()
	if age < 0 {
		return 0
	}
	return age
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
