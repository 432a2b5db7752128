package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

// RemoteConfig points a driver at one external headless-browser scraper
// service. The service owns the browser fleet; this client only speaks its
// JSON API.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

const defaultRemoteTimeout = 120 * time.Second

// RemoteFactory builds sessions against a scraper service. Each session is
// bound to one platform and proxy; the service mirrors that binding on its
// side, so Close must always be called to free the browser.
func RemoteFactory(cfg RemoteConfig, baseLog *logger.Logger) Factory {
	base := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	log := baseLog.With("client", "RemoteScraper")

	return func(ctx context.Context, platform, proxyURL string) (Scraper, error) {
		s := &remoteScraper{
			base:     base,
			platform: platform,
			proxy:    proxyURL,
			http:     &http.Client{Timeout: timeout},
			log:      log.With("platform", platform),
		}
		id, err := s.open(ctx)
		if err != nil {
			return nil, err
		}
		s.session = id
		return s, nil
	}
}

type remoteScraper struct {
	base     string
	platform string
	proxy    string
	session  string
	http     *http.Client
	log      *logger.Logger
}

type remotePost struct {
	PostID   string         `json:"post_id"`
	Username string         `json:"username"`
	URL      string         `json:"url"`
	Caption  string         `json:"caption"`
	Hashtags []string       `json:"hashtags"`
	Likes    int            `json:"likes"`
	Comments int            `json:"comments"`
	Views    *int           `json:"views"`
	PostedAt time.Time      `json:"posted_at"`
	Raw      map[string]any `json:"raw"`
}

func (s *remoteScraper) open(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	err := s.post(ctx, "/sessions", map[string]any{
		"platform": s.platform,
		"proxy":    s.proxy,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("open scraper session: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("open scraper session: empty session id")
	}
	return out.SessionID, nil
}

func (s *remoteScraper) ScrapeProfile(ctx context.Context, username string, maxPosts int) ([]Post, error) {
	return s.scrape(ctx, "/sessions/"+s.session+"/profile", map[string]any{
		"username":  username,
		"max_posts": maxPosts,
	})
}

func (s *remoteScraper) ScrapeHashtag(ctx context.Context, tag string, maxPosts int) ([]Post, error) {
	return s.scrape(ctx, "/sessions/"+s.session+"/hashtag", map[string]any{
		"tag":       strings.TrimPrefix(tag, "#"),
		"max_posts": maxPosts,
	})
}

func (s *remoteScraper) ScrapeVideo(ctx context.Context, url string) (*Post, error) {
	var out struct {
		Post *remotePost `json:"post"`
	}
	if err := s.post(ctx, "/sessions/"+s.session+"/video", map[string]any{"url": url}, &out); err != nil {
		return nil, err
	}
	if out.Post == nil {
		return nil, fmt.Errorf("scrape video: empty response")
	}
	converted := convertPost(*out.Post)
	return &converted, nil
}

func (s *remoteScraper) Close() error {
	if s.session == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.base+"/sessions/"+s.session, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Warn("session close failed", "session_id", s.session, "error", err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	s.session = ""
	return nil
}

func (s *remoteScraper) scrape(ctx context.Context, path string, body map[string]any) ([]Post, error) {
	var out struct {
		Posts []remotePost `json:"posts"`
	}
	if err := s.post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(out.Posts))
	for _, p := range out.Posts {
		posts = append(posts, convertPost(p))
	}
	return posts, nil
}

func (s *remoteScraper) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("scraper service %s: http %d: %s", path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func convertPost(p remotePost) Post {
	return Post{
		PostID:   p.PostID,
		Username: p.Username,
		URL:      p.URL,
		Caption:  p.Caption,
		Hashtags: p.Hashtags,
		Likes:    p.Likes,
		Comments: p.Comments,
		Views:    p.Views,
		PostedAt: p.PostedAt,
		Raw:      p.Raw,
	}
}
