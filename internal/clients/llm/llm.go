package llm

import (
	"context"

	"github.com/gamesignal/gamesignal-backend/internal/config"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

// Client generates one completion for one prompt pair. Implementations are
// expected to answer with strict JSON or the literal word "null"; response
// policing is the extractor's job, not the client's.
type Client interface {
	Generate(ctx context.Context, system string, user string) (string, error)
}

// New selects the configured provider. Unknown providers fall back to the
// mock so a misconfigured box degrades to no-cards instead of crashing.
func New(log *logger.Logger, cfg config.LLMConfig) Client {
	switch cfg.Provider {
	case "local", "ollama":
		return newLocalClient(log, cfg)
	default:
		return NewMockClient()
	}
}
