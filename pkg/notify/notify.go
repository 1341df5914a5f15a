// Package notify fans out lifecycle decisions to external subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/config"
)

// Kind of a published event
type Kind string

const (
	KindDetected  Kind = "detected"
	KindValidated Kind = "validated"
	KindBought    Kind = "bought"
	KindSold      Kind = "sold"
	KindRemoved   Kind = "removed"
)

// Event is one published decision.
type Event struct {
	Kind   Kind      `json:"kind"`
	Token  string    `json:"token"`
	Name   string    `json:"name,omitempty"`
	Symbol string    `json:"symbol,omitempty"`
	State  string    `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Redis publishes events as JSON on a pub/sub channel.
type Redis struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	return newRedis(rdb, cfg.Channel, logger), nil
}

func newRedis(rdb *redis.Client, channel string, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, channel: channel, logger: logger}
}

// Publish sends ev to the configured channel.
func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		metrics.ExternalCalls.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to publish %s event for %s: %w", ev.Kind, ev.Token, err)
	}
	metrics.ExternalCalls.WithLabelValues("redis", "ok").Inc()
	r.logger.Debug("Event published", zap.String("kind", string(ev.Kind)), zap.String("token", ev.Token))
	return nil
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
