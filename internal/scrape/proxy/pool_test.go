package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func writePool(t *testing.T, path string, proxies []string) {
	t.Helper()
	data, err := json.Marshal(poolFile{
		VerifiedAt: time.Now().UTC(),
		Count:      len(proxies),
		Proxies:    proxies,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestGetWorkingProxyRoundRobin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verified_proxies.json")
	writePool(t, path, []string{"http://p1:8080", "http://p2:8080"})

	pool := NewPool(path, func(ctx context.Context, proxyURL string) bool { return true }, testLogger(t))
	ctx := context.Background()

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		proxy, err := pool.GetWorkingProxy(ctx)
		if err != nil {
			t.Fatalf("GetWorkingProxy: %v", err)
		}
		seen[proxy]++
	}
	if seen["http://p1:8080"] != 2 || seen["http://p2:8080"] != 2 {
		t.Fatalf("rotation uneven: %v", seen)
	}
}

func TestGetWorkingProxyEmptyPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verified_proxies.json")
	pool := NewPool(path, nil, testLogger(t))

	if _, err := pool.GetWorkingProxy(context.Background()); !errors.Is(err, sigerr.ErrNoProxy) {
		t.Fatalf("missing file must be ErrNoProxy, got %v", err)
	}

	writePool(t, path, nil)
	pool = NewPool(path, nil, testLogger(t))
	if _, err := pool.GetWorkingProxy(context.Background()); !errors.Is(err, sigerr.ErrNoProxy) {
		t.Fatalf("empty list must be ErrNoProxy, got %v", err)
	}
}

func TestValidateAllRewritesSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verified_proxies.json")
	writePool(t, path, []string{"http://dead:8080", "http://alive:8080"})

	validate := func(ctx context.Context, proxyURL string) bool {
		return proxyURL == "http://alive:8080"
	}
	pool := NewPool(path, validate, testLogger(t))

	n, err := pool.ValidateAll(context.Background(), nil)
	if err != nil || n != 1 {
		t.Fatalf("ValidateAll: n=%d err=%v", n, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var file poolFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("parse sidecar: %v", err)
	}
	if file.Count != 1 || len(file.Proxies) != 1 || file.Proxies[0] != "http://alive:8080" {
		t.Fatalf("sidecar content: %+v", file)
	}
	if file.VerifiedAt.IsZero() {
		t.Fatal("verified_at must be set")
	}

	proxy, err := pool.GetWorkingProxy(context.Background())
	if err != nil || proxy != "http://alive:8080" {
		t.Fatalf("post-validate get: %q err=%v", proxy, err)
	}
}

func TestValidateAllWithCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verified_proxies.json")
	pool := NewPool(path, func(ctx context.Context, proxyURL string) bool { return true }, testLogger(t))

	n, err := pool.ValidateAll(context.Background(), []string{"http://a:1", "http://b:2"})
	if err != nil || n != 2 {
		t.Fatalf("ValidateAll: n=%d err=%v", n, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sidecar must exist after validation: %v", err)
	}
}
