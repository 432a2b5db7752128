package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/config"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

// Post is one submission as yielded by the fetcher, newest-first.
// ExternalID carries the kind prefix (t3_...).
type Post struct {
	ExternalID  string
	ExternalURL string
	Permalink   string
	Subreddit   string
	Title       string
	Body        string
	Author      string
	AuthorFlair string
	Score       int
	NumComments int
	CreatedUTC  time.Time
	NSFW        bool
	Removed     bool
	Raw         map[string]any
}

// Comment is one comment of a submission.
type Comment struct {
	ExternalID       string
	ParentExternalID string
	Body             string
	Author           string
	AuthorFlair      string
	Score            int
	Depth            int
	CreatedUTC       time.Time
	Removed          bool
	Raw              map[string]any
}

// Client fetches reddit's public JSON endpoints. It enforces its own rate
// limit (minimum two seconds between requests) and identifies itself with a
// descriptive User-Agent, per reddit API etiquette.
type Client struct {
	log        *logger.Logger
	baseURL    string
	userAgent  string
	httpClient *http.Client
	maxRetries int

	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

const (
	defaultBaseURL = "https://www.reddit.com"
	backoffBase    = 2 * time.Second
	backoffCap     = 60 * time.Second
	defaultRetries = 5
)

func NewClient(log *logger.Logger, cfg config.FetchConfig) *Client {
	return &Client{
		log:         log.With("client", "RedditClient"),
		baseURL:     defaultBaseURL,
		userAgent:   cfg.UserAgent,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  defaultRetries,
		minInterval: 2 * time.Second,
	}
}

// WithBaseURL points the client somewhere else (tests).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("reddit http %d: %s", e.StatusCode, e.Body)
}

// 403 and 404 are permanent: reddit returns 403 for banned/private
// subreddits and that never heals with retries.
func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	backoff := backoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.throttle(ctx); err != nil {
			return err
		}

		err := c.getOnce(ctx, path, query, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryableErr(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := jitter(backoff)
		c.log.Warn("reddit request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *Client) getOnce(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(raw)
		if len(body) > 200 {
			body = body[:200]
		}
		return &httpError{StatusCode: resp.StatusCode, Body: body}
	}
	return json.Unmarshal(raw, out)
}

// listing is the reddit Listing envelope.
type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string         `json:"kind"`
			Data map[string]any `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchSubredditNew pages /r/<name>/new newest-first and stops once it
// reaches posts at or before lastSeen (nil means no lower bound).
func (c *Client) FetchSubredditNew(ctx context.Context, name string, limit int, lastSeen *time.Time) ([]Post, error) {
	path := fmt.Sprintf("/r/%s/new.json", url.PathEscape(strings.ToLower(name)))
	return c.fetchListing(ctx, path, url.Values{}, limit, lastSeen)
}

// FetchSearch runs a keyword search, optionally restricted to a subreddit,
// sorted by newest-first, with the same lastSeen cutoff as FetchSubredditNew.
func (c *Client) FetchSearch(ctx context.Context, query string, subreddit string, limit int, lastSeen *time.Time) ([]Post, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "new")
	path := "/search.json"
	if subreddit != "" {
		path = fmt.Sprintf("/r/%s/search.json", url.PathEscape(strings.ToLower(subreddit)))
		q.Set("restrict_sr", "1")
	}
	return c.fetchListing(ctx, path, q, limit, lastSeen)
}

func (c *Client) fetchListing(ctx context.Context, path string, q url.Values, limit int, lastSeen *time.Time) ([]Post, error) {
	if limit <= 0 {
		limit = 25
	}
	const pageSize = 100

	var posts []Post
	after := ""
	for len(posts) < limit {
		remaining := limit - len(posts)
		q.Set("limit", fmt.Sprintf("%d", min(remaining, pageSize)))
		q.Set("raw_json", "1")
		if after != "" {
			q.Set("after", after)
		}

		var page listing
		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return posts, err
		}
		if len(page.Data.Children) == 0 {
			break
		}

		reachedBound := false
		for _, child := range page.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			post := parsePost(child.Data)
			if lastSeen != nil && !post.CreatedUTC.After(*lastSeen) {
				reachedBound = true
				break
			}
			posts = append(posts, post)
			if len(posts) >= limit {
				break
			}
		}
		if reachedBound || page.Data.After == "" {
			break
		}
		after = page.Data.After
	}
	return posts, nil
}

// FetchComments pulls top comments of a submission, flattened in reading
// order, bounded by limit and depth. The external id may carry the t3_
// prefix or not.
func (c *Client) FetchComments(ctx context.Context, submissionExternalID string, limit, depth int) ([]Comment, error) {
	id36 := strings.TrimPrefix(submissionExternalID, "t3_")
	if limit <= 0 {
		limit = 10
	}
	if depth <= 0 {
		depth = 1
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("depth", fmt.Sprintf("%d", depth))
	q.Set("sort", "top")
	q.Set("raw_json", "1")

	// The comments endpoint returns a two-element array:
	// [submission listing, comment listing].
	var pages []listing
	if err := c.getJSON(ctx, fmt.Sprintf("/comments/%s.json", url.PathEscape(id36)), q, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, nil
	}

	var comments []Comment
	collectComments(pages[1], 0, depth, limit, &comments)
	return comments, nil
}

func collectComments(page listing, curDepth, maxDepth, limit int, out *[]Comment) {
	for _, child := range page.Data.Children {
		if len(*out) >= limit {
			return
		}
		if child.Kind != "t1" {
			continue
		}
		*out = append(*out, parseComment(child.Data, curDepth))
		if curDepth+1 >= maxDepth {
			continue
		}
		if repliesRaw, ok := child.Data["replies"].(map[string]any); ok {
			var replies listing
			if buf, err := json.Marshal(repliesRaw); err == nil {
				if err := json.Unmarshal(buf, &replies); err == nil {
					collectComments(replies, curDepth+1, maxDepth, limit, out)
				}
			}
		}
	}
}

func parsePost(data map[string]any) Post {
	body := str(data, "selftext")
	removedBy := str(data, "removed_by_category")
	permalink := str(data, "permalink")
	p := Post{
		ExternalID:  str(data, "name"),
		ExternalURL: str(data, "url"),
		Permalink:   permalink,
		Subreddit:   str(data, "subreddit"),
		Title:       str(data, "title"),
		Body:        body,
		Author:      str(data, "author"),
		AuthorFlair: str(data, "author_flair_text"),
		Score:       num(data, "score"),
		NumComments: num(data, "num_comments"),
		CreatedUTC:  unixTime(data, "created_utc"),
		NSFW:        boolean(data, "over_18"),
		Removed:     removedBy != "" || strings.EqualFold(strings.TrimSpace(body), "[removed]"),
		Raw:         data,
	}
	if p.ExternalID == "" {
		if id := str(data, "id"); id != "" {
			p.ExternalID = "t3_" + id
		}
	}
	if p.Permalink != "" && !strings.HasPrefix(p.Permalink, "http") {
		p.Permalink = defaultBaseURL + p.Permalink
	}
	return p
}

func parseComment(data map[string]any, depth int) Comment {
	body := str(data, "body")
	ext := str(data, "name")
	if ext == "" {
		if id := str(data, "id"); id != "" {
			ext = "t1_" + id
		}
	}
	return Comment{
		ExternalID:       ext,
		ParentExternalID: str(data, "parent_id"),
		Body:             body,
		Author:           str(data, "author"),
		AuthorFlair:      str(data, "author_flair_text"),
		Score:            num(data, "score"),
		Depth:            depth,
		CreatedUTC:       unixTime(data, "created_utc"),
		Removed:          strings.EqualFold(strings.TrimSpace(body), "[removed]"),
		Raw:              data,
	}
}

func str(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func num(data map[string]any, key string) int {
	if v, ok := data[key].(float64); ok {
		return int(v)
	}
	return 0
}

func boolean(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func unixTime(data map[string]any, key string) time.Time {
	if v, ok := data[key].(float64); ok && v > 0 {
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
