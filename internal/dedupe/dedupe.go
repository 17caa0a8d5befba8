// Package dedupe records which webhook events have already been applied.
//
// Events are marked only after their effect is persisted, so a crash between
// the two causes a harmless replay rather than a lost update.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jmylchreest/vodarr/internal/config"
)

const defaultTTL = 24 * time.Hour

// Ledger tracks applied event ids.
type Ledger interface {
	// Seen reports whether id was marked and has not expired.
	Seen(ctx context.Context, id string) (bool, error)
	// Mark records id as applied.
	Mark(ctx context.Context, id string) error
}

// Open builds the Ledger selected by cfg.Driver.
func Open(cfg config.DedupeConfig, logger *slog.Logger) (Ledger, func() error, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	switch cfg.Driver {
	case "memory", "":
		return NewMemory(ttl), func() error { return nil }, nil
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:      cfg.Redis.Addrs,
			Username:   cfg.Redis.Username,
			Password:   cfg.Redis.Password.Reveal(),
			DB:         cfg.Redis.DB,
			MaxRetries: 2,
		})
		if logger != nil {
			logger.Info("webhook dedupe using redis", slog.Any("addrs", cfg.Redis.Addrs))
		}
		return NewRedis(client, cfg.Redis.KeyPrefix, ttl), client.Close, nil
	case "none":
		return Nop{}, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown dedupe driver %q", cfg.Driver)
	}
}

// Nop never reports an event as seen.
type Nop struct{}

// Seen always returns false.
func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

// Mark does nothing.
func (Nop) Mark(context.Context, string) error { return nil }

// Memory is an in-process Ledger. Entries expire after the TTL.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
	marks   int
}

// NewMemory creates a Memory ledger.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// Seen reports whether id was marked within the TTL.
func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[id]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.entries, id)
		return false, nil
	}
	return true, nil
}

// Mark records id. Expired entries are swept every so often.
func (m *Memory) Mark(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[id] = now.Add(m.ttl)
	m.marks++
	if m.marks%1024 == 0 {
		for k, exp := range m.entries {
			if !now.Before(exp) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

// Len returns the number of tracked ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Redis is a Ledger shared by all replicas.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis ledger.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Seen reports whether the event key exists.
func (r *Redis) Seen(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("checking event %s: %w", id, err)
	}
	return n > 0, nil
}

// Mark sets the event key with the ledger TTL. Marking twice is harmless.
func (r *Redis) Mark(ctx context.Context, id string) error {
	if err := r.client.SetNX(ctx, r.prefix+id, 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("marking event %s: %w", id, err)
	}
	return nil
}
