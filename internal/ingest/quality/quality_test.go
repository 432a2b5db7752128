package quality

import (
	"math"
	"testing"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/config"
)

func defaults() config.QualityConfig {
	return config.QualityConfig{
		MinQualityScore: 0.3,
		MinScore:        5,
		MinComments:     2,
		MaxAgeHours:     168,
		WeightScore:     0.4,
		WeightComments:  0.3,
		WeightRecency:   0.2,
		WeightFlair:     0.1,
		PenaltyNSFW:     0.5,
		PenaltyRemoved:  1.0,
	}
}

func TestScoreKnownValue(t *testing.T) {
	// score=50, comments=12, 1h old:
	// log(51)*0.4 + log(13)*0.3 + (1 - 1/168)*0.2
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in := Input{
		Score:       50,
		NumComments: 12,
		CreatedUTC:  now.Add(-1 * time.Hour),
		Now:         now,
	}
	want := math.Log(51)*0.4 + math.Log(13)*0.3 + (1-1.0/168)*0.2
	want = math.Round(want*10000) / 10000
	if got := Score(in, defaults()); got != want {
		t.Fatalf("Score = %v, want %v", got, want)
	}
	if got := Score(in, defaults()); math.Abs(got-2.32) > 0.02 {
		t.Fatalf("Score = %v, expected near 2.32", got)
	}
}

func TestScoreMonotonicInScoreAndComments(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := Input{Score: 10, NumComments: 5, CreatedUTC: now.Add(-2 * time.Hour), Now: now}

	lo := Score(base, defaults())

	up := base
	up.Score = 11
	if hi := Score(up, defaults()); hi <= lo {
		t.Fatalf("quality not monotonic in score: %v <= %v", hi, lo)
	}

	up = base
	up.NumComments = 6
	if hi := Score(up, defaults()); hi <= lo {
		t.Fatalf("quality not monotonic in comments: %v <= %v", hi, lo)
	}
}

func TestScoreNegativeInputsClamped(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in := Input{Score: -40, NumComments: -3, CreatedUTC: now, Now: now}
	// Both log components collapse to 0; only the recency boost remains.
	if got := Score(in, defaults()); got != 0.2 {
		t.Fatalf("Score = %v, want 0.2 (recency only)", got)
	}
}

func TestScoreRecencyBoostZeroPastMaxAge(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in := Input{Score: 0, NumComments: 0, CreatedUTC: now.Add(-169 * time.Hour), Now: now}
	if got := Score(in, defaults()); got != 0 {
		t.Fatalf("Score = %v, want 0 for stale zero-engagement item", got)
	}
	// Exactly at the boundary the boost is also zero.
	in.CreatedUTC = now.Add(-168 * time.Hour)
	if got := Score(in, defaults()); got != 0 {
		t.Fatalf("Score = %v, want 0 at exact MaxAgeHours", got)
	}
}

func TestScorePenalties(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := Input{Score: 20, NumComments: 8, CreatedUTC: now.Add(-3 * time.Hour), Now: now}
	clean := Score(base, defaults())

	nsfw := base
	nsfw.NSFW = true
	if got := Score(nsfw, defaults()); math.Abs(clean-got-0.5) > 1e-9 {
		t.Fatalf("nsfw penalty: clean=%v nsfw=%v", clean, got)
	}

	removed := base
	removed.Removed = true
	if got := Score(removed, defaults()); math.Abs(clean-got-1.0) > 1e-9 {
		t.Fatalf("removed penalty: clean=%v removed=%v", clean, got)
	}

	flaired := base
	flaired.HasFlair = true
	if got := Score(flaired, defaults()); math.Abs(got-clean-0.1) > 1e-9 {
		t.Fatalf("flair bonus: clean=%v flaired=%v", clean, got)
	}
}

func TestPassesFilter(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ok := Input{Score: 50, NumComments: 12, CreatedUTC: now.Add(-1 * time.Hour), Now: now}
	cfg := defaults()

	if !PassesFilter(ok, Score(ok, cfg), cfg) {
		t.Fatal("healthy item must pass")
	}

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"removed", func(in *Input) { in.Removed = true }},
		{"low score", func(in *Input) { in.Score = 4 }},
		{"low comments", func(in *Input) { in.NumComments = 1 }},
		{"too old", func(in *Input) { in.CreatedUTC = now.Add(-200 * time.Hour) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := ok
			tc.mutate(&in)
			if PassesFilter(in, Score(in, cfg), cfg) {
				t.Fatalf("%s item must not pass", tc.name)
			}
		})
	}
}

func TestIsHighQuality(t *testing.T) {
	cfg := defaults()
	if IsHighQuality(0.59, cfg) {
		t.Fatal("0.59 is below 2*MinQualityScore")
	}
	if !IsHighQuality(0.6, cfg) {
		t.Fatal("0.6 meets 2*MinQualityScore")
	}
}
