package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/radiology-ops/internal/modality"
)

// ConfigStore persists modality settings. Unset modalities resolve to the
// defaults supplied at construction.
type ConfigStore interface {
	Get(ctx context.Context, tag modality.Tag) (Settings, error)
	Set(ctx context.Context, tag modality.Tag, s Settings) error
	All(ctx context.Context) (map[modality.Tag]Settings, error)
}

// MemoryConfigStore keeps settings in process memory.
type MemoryConfigStore struct {
	mu       sync.RWMutex
	defaults map[modality.Tag]Settings
	values   map[modality.Tag]Settings
}

// NewMemoryConfigStore creates a store; nil defaults means DefaultSettings.
func NewMemoryConfigStore(defaults map[modality.Tag]Settings) *MemoryConfigStore {
	if defaults == nil {
		defaults = DefaultSettings()
	}
	return &MemoryConfigStore{defaults: defaults, values: map[modality.Tag]Settings{}}
}

func (s *MemoryConfigStore) Get(ctx context.Context, tag modality.Tag) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[tag]; ok {
		return cloneSettings(v), nil
	}
	return cloneSettings(s.defaults[tag]), nil
}

func (s *MemoryConfigStore) Set(ctx context.Context, tag modality.Tag, v Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[tag] = cloneSettings(v)
	return nil
}

func (s *MemoryConfigStore) All(ctx context.Context) (map[modality.Tag]Settings, error) {
	out := make(map[modality.Tag]Settings, len(modality.All()))
	for _, tag := range modality.All() {
		v, _ := s.Get(ctx, tag)
		out[tag] = v
	}
	return out, nil
}

// RedisConfigStore keeps each modality's settings as a JSON value.
type RedisConfigStore struct {
	redis    *redis.Client
	defaults map[modality.Tag]Settings
}

// NewRedisConfigStore creates a store; nil defaults means DefaultSettings.
func NewRedisConfigStore(client *redis.Client, defaults map[modality.Tag]Settings) *RedisConfigStore {
	if client == nil {
		panic("quota: redis client required")
	}
	if defaults == nil {
		defaults = DefaultSettings()
	}
	return &RedisConfigStore{redis: client, defaults: defaults}
}

func (s *RedisConfigStore) key(tag modality.Tag) string {
	return fmt.Sprintf("radiology:modality:%s", tag)
}

// Get retrieves a modality's settings, returning the default if not found.
func (s *RedisConfigStore) Get(ctx context.Context, tag modality.Tag) (Settings, error) {
	data, err := s.redis.Get(ctx, s.key(tag)).Bytes()
	if err == redis.Nil {
		return cloneSettings(s.defaults[tag]), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("quota: get settings: %w", err)
	}
	var v Settings
	if err := json.Unmarshal(data, &v); err != nil {
		return Settings{}, fmt.Errorf("quota: unmarshal settings: %w", err)
	}
	return v, nil
}

func (s *RedisConfigStore) Set(ctx context.Context, tag modality.Tag, v Settings) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("quota: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(tag), data, 0).Err(); err != nil {
		return fmt.Errorf("quota: set settings: %w", err)
	}
	return nil
}

// All loads every modality in one MGET round trip.
func (s *RedisConfigStore) All(ctx context.Context) (map[modality.Tag]Settings, error) {
	tags := modality.All()
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = s.key(tag)
	}
	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("quota: load all settings: %w", err)
	}
	out := make(map[modality.Tag]Settings, len(tags))
	for i, tag := range tags {
		raw, ok := vals[i].(string)
		if !ok {
			out[tag] = cloneSettings(s.defaults[tag])
			continue
		}
		var v Settings
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("quota: unmarshal settings for %s: %w", tag, err)
		}
		out[tag] = v
	}
	return out, nil
}

func cloneSettings(s Settings) Settings {
	if s.Slots != nil {
		s.Slots = append([]string(nil), s.Slots...)
	}
	return s
}
