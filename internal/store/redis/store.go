// Package redis persists agent state as JSON in Redis and publishes cycle
// reports over Redis Pub/Sub. Every call goes through a circuit breaker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptoagent/internal/breaker"
	"cryptoagent/internal/model"
	"cryptoagent/internal/store"
)

const (
	defaultPrefix     = "cryptoagent:"
	defaultTradesKeep = 1000
)

// Config configures the Redis store.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string // prepended to every key and channel
}

// Store implements store.Store on a single Redis key.
type Store struct {
	client *goredis.Client
	prefix string
	cb     *breaker.CircuitBreaker
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a Redis store and pings the server.
func New(ctx context.Context, cfg Config, cb *breaker.CircuitBreaker, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cb == nil {
		cb = breaker.New("redis", 5, 30*time.Second)
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	logger = logger.With("component", "redis")
	logger.Info("connected", "addr", cfg.Addr, "prefix", prefix)
	return &Store{client: client, prefix: prefix, cb: cb, logger: logger}, nil
}

// Key returns the namespaced key for name.
func (s *Store) Key(name string) string { return keyFor(s.prefix, name) }

func keyFor(prefix, name string) string { return prefix + name }

// Load reads the saved state. Returns (nil, nil) when none exists.
func (s *Store) Load(ctx context.Context) (*store.State, error) {
	var data []byte
	err := s.cb.Execute(func() error {
		var err error
		data, err = s.client.Get(ctx, s.Key("state")).Bytes()
		if errors.Is(err, goredis.Nil) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get state: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeState(data)
}

// Save writes the state and its save time in one transaction.
func (s *Store) Save(ctx context.Context, st *store.State) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	err = s.cb.Execute(func() error {
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, s.Key("state"), data, 0)
			pipe.Set(ctx, s.Key("saved_at"), st.SavedAt.UTC().Format(time.RFC3339Nano), 0)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis save state: %w", err)
	}
	return nil
}

// RecordTrade pushes an accepted order onto a capped list, newest first.
func (s *Store) RecordTrade(ctx context.Context, rec model.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	return s.cb.Execute(func() error {
		pipe := s.client.Pipeline()
		pipe.LPush(ctx, s.Key("trades"), data)
		pipe.LTrim(ctx, s.Key("trades"), 0, defaultTradesKeep-1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Publish publishes msg on the namespaced channel.
func (s *Store) Publish(ctx context.Context, channel string, msg []byte) error {
	return s.cb.Execute(func() error {
		return s.client.Publish(ctx, s.Key(channel), msg).Err()
	})
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func encodeState(st *store.State) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("redis save: nil state")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*store.State, error) {
	var st store.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if st.Version > store.StateVersion {
		return nil, fmt.Errorf("unsupported state version %d", st.Version)
	}
	return &st, nil
}
