package scrape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

func TestClassifierDefaults(t *testing.T) {
	c := NewClassifier()

	proxyErrs := []string{
		"navigation timeout of 30000 ms exceeded",
		"net::ERR_PROXY_CONNECTION_FAILED",
		"Execution context was destroyed",
		"tiktok says: Something went wrong",
		"dial tcp: connection refused",
	}
	for _, msg := range proxyErrs {
		if !c.IsProxyFailure(errors.New(msg)) {
			t.Fatalf("%q must classify as proxy failure", msg)
		}
	}

	if c.IsProxyFailure(errors.New("selector .post-grid not found")) {
		t.Fatal("scrape bugs must not burn the proxy")
	}
	if c.IsProxyFailure(nil) {
		t.Fatal("nil error is not a failure")
	}
}

func TestLoadClassifierReplacesTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classifier.yaml")
	content := "proxy_failure_tokens:\n  - Captcha Wall\n  - \"  \"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadClassifier(path)
	if err != nil {
		t.Fatalf("LoadClassifier: %v", err)
	}
	if !c.IsProxyFailure(errors.New("hit a captcha wall")) {
		t.Fatal("custom token must match case-insensitively")
	}
	// The explicit file replaces the default set entirely.
	if c.IsProxyFailure(errors.New("navigation timeout")) {
		t.Fatal("default tokens must be gone after an override")
	}
}

func TestLoadClassifierEmptyFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classifier.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadClassifier(path)
	if err != nil {
		t.Fatalf("LoadClassifier: %v", err)
	}
	if !c.IsProxyFailure(errors.New("request timed out")) {
		t.Fatal("empty file must fall back to defaults")
	}
}

func TestLoadClassifierEmptyPathIsDefaults(t *testing.T) {
	c, err := LoadClassifier("")
	if err != nil {
		t.Fatalf("LoadClassifier: %v", err)
	}
	if !c.IsProxyFailure(errors.New("target closed")) {
		t.Fatal("defaults expected")
	}
}

type nopScraper struct{}

func (nopScraper) ScrapeProfile(ctx context.Context, username string, maxPosts int) ([]Post, error) {
	return nil, nil
}
func (nopScraper) ScrapeHashtag(ctx context.Context, tag string, maxPosts int) ([]Post, error) {
	return nil, nil
}
func (nopScraper) Close() error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestDriverPolicySwapsToFallback(t *testing.T) {
	primary := func(ctx context.Context, platform, proxyURL string) (Scraper, error) {
		return nil, errors.New("driver binary missing")
	}
	var fallbackPlatform string
	fallback := func(ctx context.Context, platform, proxyURL string) (Scraper, error) {
		fallbackPlatform = platform
		return nopScraper{}, nil
	}
	policy := NewDriverPolicy(primary, fallback, testLogger(t))

	s, err := policy.New(context.Background(), "tiktok", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s == nil || fallbackPlatform != "tiktok" {
		t.Fatalf("fallback not engaged: %v", fallbackPlatform)
	}
}

func TestDriverPolicyNoFallbackPropagates(t *testing.T) {
	primary := func(ctx context.Context, platform, proxyURL string) (Scraper, error) {
		return nil, errors.New("driver binary missing")
	}
	policy := NewDriverPolicy(primary, nil, testLogger(t))
	if _, err := policy.New(context.Background(), "instagram", ""); err == nil {
		t.Fatal("expected primary error")
	}
}
