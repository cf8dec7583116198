package genclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type CooldownConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier int
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Initial:    time.Minute,
		Max:        time.Hour,
		Multiplier: 5,
	}
}

func (c CooldownConfig) duration(errorCount int) time.Duration {
	d := c.Initial
	for i := 1; i < errorCount; i++ {
		d *= time.Duration(c.Multiplier)
		if d > c.Max {
			return c.Max
		}
	}
	return d
}

// CooldownStore tracks which providers are benched after repeated failures.
// Implementations must be safe for concurrent use.
type CooldownStore interface {
	InCooldown(ctx context.Context, providerID string, now time.Time) bool
	MarkFailure(ctx context.Context, providerID string, now time.Time)
	Reset(ctx context.Context, providerID string)
}

type memoryEntry struct {
	errorCount int
	until      time.Time
}

// MemoryCooldowns is the single-process store.
type MemoryCooldowns struct {
	mu      sync.Mutex
	config  CooldownConfig
	entries map[string]*memoryEntry
}

func NewMemoryCooldowns(cfg CooldownConfig) *MemoryCooldowns {
	return &MemoryCooldowns{
		config:  cfg,
		entries: make(map[string]*memoryEntry),
	}
}

func (m *MemoryCooldowns) InCooldown(_ context.Context, providerID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[providerID]
	return ok && now.Before(e.until)
}

func (m *MemoryCooldowns) MarkFailure(_ context.Context, providerID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[providerID]
	if !ok {
		e = &memoryEntry{}
		m.entries[providerID] = e
	}
	e.errorCount++
	e.until = now.Add(m.config.duration(e.errorCount))
}

func (m *MemoryCooldowns) Reset(_ context.Context, providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, providerID)
}

// RedisCooldowns shares cooldown state between replicas so one process
// hitting a rate limit benches the provider for all of them.
type RedisCooldowns struct {
	config CooldownConfig
	client *redis.Client
}

func NewRedisCooldowns(cfg CooldownConfig, addr string) *RedisCooldowns {
	return &RedisCooldowns{
		config: cfg,
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisCooldowns) benchKey(id string) string { return fmt.Sprintf("planmux:cooldown:%s", id) }
func (r *RedisCooldowns) failKey(id string) string  { return fmt.Sprintf("planmux:failures:%s", id) }

func (r *RedisCooldowns) InCooldown(ctx context.Context, providerID string, _ time.Time) bool {
	n, err := r.client.Exists(ctx, r.benchKey(providerID)).Result()
	// On store errors, err toward trying the provider rather than benching it.
	return err == nil && n > 0
}

func (r *RedisCooldowns) MarkFailure(ctx context.Context, providerID string, _ time.Time) {
	count, err := r.client.Incr(ctx, r.failKey(providerID)).Result()
	if err != nil {
		return
	}
	// Failure counts decay after the maximum bench window.
	r.client.Expire(ctx, r.failKey(providerID), r.config.Max)
	d := r.config.duration(int(count))
	r.client.Set(ctx, r.benchKey(providerID), "1", d)
}

func (r *RedisCooldowns) Reset(ctx context.Context, providerID string) {
	r.client.Del(ctx, r.benchKey(providerID), r.failKey(providerID))
}

func (r *RedisCooldowns) Close() error {
	return r.client.Close()
}
