// Package notify mirrors option transitions to Redis: every transition is
// published on a channel and the latest active option of each agent is kept
// in a hash.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talgya/mini-reasoner/internal/config"
	"github.com/talgya/mini-reasoner/internal/engine"
)

const publishTimeout = 2 * time.Second

// Publisher writes transitions to Redis. A nil Publisher drops everything.
type Publisher struct {
	rdb      *redis.Client
	channel  string
	stateKey string
}

// NewPublisher connects to the configured Redis. Returns nil if no address
// is set.
func NewPublisher(cfg *config.Config) *Publisher {
	if cfg.Redis.Addr == "" {
		return nil
	}
	channel := cfg.Redis.Channel
	if channel == "" {
		channel = "reasoner:transitions"
	}
	return &Publisher{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		channel:  channel,
		stateKey: channel + ":active",
	}
}

// Client exposes the underlying Redis client.
func (p *Publisher) Client() *redis.Client {
	if p == nil {
		return nil
	}
	return p.rdb
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.rdb.Ping(ctx).Err()
}

// Publish sends e on the channel and records the agent's new option.
func (p *Publisher) Publish(ctx context.Context, e engine.Event) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}
	pipe := p.rdb.TxPipeline()
	pipe.Publish(ctx, p.channel, payload)
	pipe.HSet(ctx, p.stateKey, e.Agent, e.To)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// Active returns the last published option per agent.
func (p *Publisher) Active(ctx context.Context) (map[string]string, error) {
	if p == nil {
		return nil, nil
	}
	return p.rdb.HGetAll(ctx, p.stateKey).Result()
}

// Run publishes events until ctx is done or events is closed. Failures are
// logged and the event is dropped.
func (p *Publisher) Run(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.Publish(pctx, e); err != nil {
				slog.Warn("redis publish failed", "agent", e.Agent, "option", e.To, "error", err)
			}
			cancel()
		}
	}
}

// Close releases the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
