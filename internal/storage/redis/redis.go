// Package redis provides a storage backend on a Redis hash.
//
// Each namespace is one hash keyed "<db>:<store>:v<version>" whose fields
// are entry IDs and whose values are JSON-encoded entries.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

// Backend is a Redis [storage.Backend].
type Backend struct {
	client *redis.Client
	cfg    storage.Config
	key    string
}

var _ storage.Backend = (*Backend)(nil)

// New connects to Redis. addr is either "host:port" or a redis:// URL.
func New(ctx context.Context, addr string, cfg storage.Config) (*Backend, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	opts, err := clientOptions(addr)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping redis at %s: %w", opts.Addr, err)
	}

	return &Backend{client: client, cfg: cfg, key: cfg.Namespace()}, nil
}

// Open returns a [storage.RetentionStore] over a Redis backend.
func Open(ctx context.Context, addr string, cfg storage.Config) (*storage.RetentionStore, error) {
	b, err := New(ctx, addr, cfg)
	if err != nil {
		return nil, &storage.Error{Op: "open", Backend: "redis", Err: err}
	}
	return storage.NewRetentionStore(b, b.cfg.Policy()), nil
}

func clientOptions(addr string) (*redis.Options, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// Name implements [storage.Backend].
func (b *Backend) Name() string { return "redis" }

// Key returns the hash key of the namespace.
func (b *Backend) Key() string { return b.key }

// Close closes the client.
func (b *Backend) Close() error { return b.client.Close() }

// ReadAll returns every entry in the hash.
func (b *Backend) ReadAll(ctx context.Context) ([]model.LogEntry, error) {
	values, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.key, err)
	}

	entries := make([]model.LogEntry, 0, len(values))
	for id, raw := range values {
		var e model.LogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode entry %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteAll replaces the hash in a MULTI/EXEC transaction.
func (b *Backend) WriteAll(ctx context.Context, entries []model.LogEntry) error {
	fields := make([]interface{}, 0, 2*len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
		}
		fields = append(fields, e.ID, string(data))
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, b.key, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", b.key, err)
	}
	return nil
}
