package redis

// Package redis provides the Redis-backed session storage shared by every client
// of the same user. Removals are broadcast over pub/sub so other clients drop
// their in-memory session immediately.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/quill/internal/ports"
)

// DefaultRemovalChannel is the pub/sub channel removal notices are published on.
const DefaultRemovalChannel = "quill:session:removed"

var _ ports.SessionStorage = (*SessionStorage)(nil)

// SessionStorageOptions configures SessionStorage.
type SessionStorageOptions struct {
	// TTL bounds how long Redis keeps a blob; zero keeps it until removed.
	TTL     time.Duration
	Channel string
	Logger  *slog.Logger
}

// SessionStorage implements ports.SessionStorage on a Redis string key per session.
type SessionStorage struct {
	client  redis.UniversalClient
	ttl     time.Duration
	channel string
	logger  *slog.Logger
}

// NewSessionStorage creates a Redis-backed session storage.
func NewSessionStorage(client redis.UniversalClient, opts SessionStorageOptions) *SessionStorage {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultRemovalChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStorage{client: client, ttl: opts.TTL, channel: channel, logger: logger}
}

func (s *SessionStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("session key cannot be empty")
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (s *SessionStorage) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("session key cannot be empty")
	}
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes the blob and publishes the key on the removal channel.
func (s *SessionStorage) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Publish(ctx, s.channel, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis remove: %w", err)
	}
	return nil
}

// WatchRemovals subscribes to the removal channel and forwards notices for key.
func (s *SessionStorage) WatchRemovals(ctx context.Context, key string) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so no removal published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", s.channel, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				s.logger.Debug("close session pubsub", "error", err)
			}
		}()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload != key {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
