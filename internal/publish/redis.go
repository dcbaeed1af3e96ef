// Package publish fans predictions out to other processes.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banshee-data/arrhythmix/internal/state"
)

const (
	DefaultChannel = "arrhythmix:predictions"
	DefaultKey     = "arrhythmix:latest"
)

// Redis stores the latest prediction under Key and publishes every
// prediction on Channel, both as JSON.
type Redis struct {
	Client  *redis.Client
	Channel string
	Key     string
	// TTL expires the latest-prediction key; zero keeps it forever.
	TTL time.Duration
}

// NewRedis connects to addr, which is either a redis:// URL or host:port.
func NewRedis(addr, channel, key string) (*Redis, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: addr}
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if key == "" {
		key = DefaultKey
	}
	return &Redis{Client: redis.NewClient(opts), Channel: channel, Key: key}, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Observe publishes p.
func (r *Redis) Observe(ctx context.Context, p state.Prediction) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}
	_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.Key, body, r.TTL)
		pipe.Publish(ctx, r.Channel, body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish prediction %d: %w", p.Seq, err)
	}
	return nil
}

// Latest returns the stored prediction, or nil if none has been published.
func (r *Redis) Latest(ctx context.Context) (*state.Prediction, error) {
	body, err := r.Client.Get(ctx, r.Key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p state.Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return &p, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.Client.Close()
}
