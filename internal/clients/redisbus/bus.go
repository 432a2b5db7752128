package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gamesignal/gamesignal-backend/internal/config"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
)

// Event is the hand-off envelope for downstream consumers (the AI content
// generator and the viral-hook aggregator). Fire-and-forget pub/sub; losing
// an event is acceptable, the tables remain the source of truth.
type Event struct {
	Kind      string    `json:"kind"` // "spike_alert" | "viral_outlier"
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

type Bus interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type bus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// New connects to redis when REDIS_ADDR is configured; callers treat a nil
// bus as "publishing disabled".
func New(log *logger.Logger, cfg config.RedisConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "gamesignal.signals"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &bus{
		log:     log.With("service", "RedisSignalBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis signal bus not initialized")
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
