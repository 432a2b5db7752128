package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/platform/sigerr"
)

// Direct is the caller value that disables proxy use entirely, as opposed
// to the empty string which means "pick one for me".
const Direct = "DIRECT"

const snapshotKey = "verified_proxies"

// poolFile is the on-disk sidecar format.
type poolFile struct {
	VerifiedAt time.Time `json:"verified_at"`
	Count      int       `json:"count"`
	Proxies    []string  `json:"proxies"`
}

// Validator probes one proxy URL and reports whether it is usable.
type Validator func(ctx context.Context, proxyURL string) bool

// Pool hands out verified proxies from a JSON sidecar file. Reads snapshot
// the list through a short-lived cache; ValidateAll rewrites the file
// atomically so concurrent readers never observe a torn list.
type Pool struct {
	path     string
	validate Validator
	cache    *gocache.Cache
	log      *logger.Logger

	mu     sync.Mutex
	cursor int
}

func NewPool(path string, validate Validator, baseLog *logger.Logger) *Pool {
	if validate == nil {
		validate = DefaultValidator
	}
	return &Pool{
		path:     path,
		validate: validate,
		cache:    gocache.New(5*time.Minute, 10*time.Minute),
		log:      baseLog.With("component", "ProxyPool"),
	}
}

// GetWorkingProxy returns the next proxy in round-robin order, or
// sigerr.ErrNoProxy when the verified list is empty or missing.
func (p *Pool) GetWorkingProxy(ctx context.Context) (string, error) {
	proxies, err := p.snapshot()
	if err != nil {
		return "", err
	}
	if len(proxies) == 0 {
		return "", sigerr.ErrNoProxy
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	proxy := proxies[p.cursor%len(proxies)]
	p.cursor++
	return proxy, nil
}

// ValidateAll probes the candidates (or the current file contents when nil)
// and replaces the sidecar with the survivors. Returns the verified count.
func (p *Pool) ValidateAll(ctx context.Context, candidates []string) (int, error) {
	if candidates == nil {
		existing, err := p.snapshot()
		if err != nil && err != sigerr.ErrNoProxy {
			return 0, err
		}
		candidates = existing
	}

	var verified []string
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if p.validate(ctx, candidate) {
			verified = append(verified, candidate)
		} else {
			p.log.Debug("proxy failed validation", "proxy", candidate)
		}
	}

	if err := p.writeFile(verified); err != nil {
		return 0, err
	}
	p.cache.Set(snapshotKey, verified, gocache.DefaultExpiration)
	p.log.Info("proxy pool refreshed", "candidates", len(candidates), "verified", len(verified))
	return len(verified), nil
}

func (p *Pool) snapshot() ([]string, error) {
	if cached, ok := p.cache.Get(snapshotKey); ok {
		return cached.([]string), nil
	}
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, sigerr.ErrNoProxy
	}
	if err != nil {
		return nil, fmt.Errorf("read proxy pool: %w", err)
	}
	var file poolFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse proxy pool: %w", err)
	}
	p.cache.Set(snapshotKey, file.Proxies, gocache.DefaultExpiration)
	return file.Proxies, nil
}

// writeFile replaces the sidecar via rename so readers see either the old
// or the new list, never a partial write.
func (p *Pool) writeFile(proxies []string) error {
	if proxies == nil {
		proxies = []string{}
	}
	file := poolFile{
		VerifiedAt: time.Now().UTC(),
		Count:      len(proxies),
		Proxies:    proxies,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".proxies-*.json")
	if err != nil {
		return fmt.Errorf("write proxy pool: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write proxy pool: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write proxy pool: %w", err)
	}
	return os.Rename(tmp.Name(), p.path)
}

// DefaultValidator tunnels a HEAD request through the proxy with a short
// deadline.
func DefaultValidator(ctx context.Context, proxyURL string) bool {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return false
	}
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://www.tiktok.com/", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
