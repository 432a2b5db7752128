package strategy

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"github.com/gamesignal/gamesignal-backend/internal/clients/llm"
	types "github.com/gamesignal/gamesignal-backend/internal/domain/listening"
	"github.com/gamesignal/gamesignal-backend/internal/ingest/normalize"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

const (
	maxPromptComments = 3
	maxSnippetWords   = 20
)

// ExtractInput carries the normalized item content handed to the LLM.
type ExtractInput struct {
	Title     string
	Body      string
	Comments  []string
	Permalink string
}

// Extractor turns a discussion into at most one strategy card. It never
// returns an error: any failure (transport, parse, schema) yields a nil card
// and a log line, so a flaky model cannot stall an ingestion pass.
type Extractor struct {
	client llm.Client
	log    *logger.Logger
}

func NewExtractor(client llm.Client, baseLog *logger.Logger) *Extractor {
	return &Extractor{client: client, log: baseLog.With("component", "StrategyExtractor")}
}

// cardPayload mirrors the JSON schema the prompt demands.
type cardPayload struct {
	PlatformTargets []string         `json:"platform_targets"`
	Niche           string           `json:"niche"`
	Tactic          string           `json:"tactic"`
	Steps           []types.CardStep `json:"steps"`
	Preconditions   map[string]any   `json:"preconditions"`
	Metrics         map[string]any   `json:"metrics"`
	Risks           []string         `json:"risks"`
	Confidence      float64          `json:"confidence"`
	Evidence        struct {
		QuoteSnippets []string `json:"quote_snippets"`
		Permalink     string   `json:"permalink"`
	} `json:"evidence"`
}

func (e *Extractor) Extract(ctx context.Context, in ExtractInput) *types.StrategyCard {
	raw, err := e.client.Generate(ctx, systemPrompt, userPrompt(in))
	if err != nil {
		e.log.Warn("llm generate failed", "permalink", in.Permalink, "error", err)
		return nil
	}
	return e.parseResponse(raw, in.Permalink)
}

func (e *Extractor) parseResponse(raw, permalink string) *types.StrategyCard {
	text := strings.TrimSpace(raw)
	if text == "" || strings.EqualFold(text, "null") {
		return nil
	}
	text = unwrapFence(text)

	payload, ok := e.decode(text, permalink)
	if !ok {
		return nil
	}
	if strings.TrimSpace(payload.Tactic) == "" || len(payload.PlatformTargets) == 0 {
		e.log.Debug("card rejected, missing tactic or platform_targets", "permalink", permalink)
		return nil
	}

	payload.Evidence.Permalink = permalink
	for i, snippet := range payload.Evidence.QuoteSnippets {
		payload.Evidence.QuoteSnippets[i] = normalize.TruncateWords(snippet, maxSnippetWords)
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}

	card := &types.StrategyCard{
		Niche:      payload.Niche,
		Tactic:     payload.Tactic,
		Confidence: payload.Confidence,
	}
	var marshalErr error
	card.PlatformTargets, marshalErr = marshalField(marshalErr, payload.PlatformTargets)
	card.Steps, marshalErr = marshalField(marshalErr, orEmptySteps(payload.Steps))
	card.Preconditions, marshalErr = marshalField(marshalErr, orEmptyMap(payload.Preconditions))
	card.Metrics, marshalErr = marshalField(marshalErr, orEmptyMap(payload.Metrics))
	card.Risks, marshalErr = marshalField(marshalErr, orEmptyList(payload.Risks))
	card.Evidence, marshalErr = marshalField(marshalErr, payload.Evidence)
	if marshalErr != nil {
		e.log.Warn("card marshal failed", "permalink", permalink, "error", marshalErr)
		return nil
	}
	return card
}

func (e *Extractor) decode(text, permalink string) (*cardPayload, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") {
		var list []cardPayload
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			e.log.Warn("card json parse failed", "permalink", permalink, "error", err)
			return nil, false
		}
		if len(list) == 0 {
			return nil, false
		}
		return &list[0], true
	}
	var payload cardPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		e.log.Warn("card json parse failed", "permalink", permalink, "error", err)
		return nil, false
	}
	return &payload, true
}

// unwrapFence strips a markdown code fence, with or without a language tag.
func unwrapFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

func marshalField(prev error, v any) (datatypes.JSON, error) {
	if prev != nil {
		return nil, prev
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func orEmptySteps(steps []types.CardStep) []types.CardStep {
	if steps == nil {
		return []types.CardStep{}
	}
	return steps
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
