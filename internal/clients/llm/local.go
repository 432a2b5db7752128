package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gamesignal/gamesignal-backend/internal/config"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

// localClient talks to an Ollama-compatible /api/generate endpoint. One
// shot, fixed timeout, no retries: a slow or broken local model means no
// card for that item, nothing more.
type localClient struct {
	log        *logger.Logger
	host       string
	model      string
	httpClient *http.Client
}

func newLocalClient(log *logger.Logger, cfg config.LLMConfig) *localClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &localClient{
		log:        log.With("client", "LocalLLMClient"),
		host:       strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *localClient) Generate(ctx context.Context, system string, user string) (string, error) {
	body := generateRequest{
		Model:  c.model,
		System: system,
		Prompt: user,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.3,
			"num_predict": 500,
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", fmt.Errorf("llm http %d: %s", resp.StatusCode, msg)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	return out.Response, nil
}
