package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slicesim/slicesim/sim/orchestrator"
)

// RedisConfig configures the Redis run store.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"` // 0 keeps runs forever
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultRedisConfig returns defaults for address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "slicesim:runs:",
		Timeout: 5 * time.Second,
	}
}

// RedisRunStore keeps each run view as a JSON string under "<prefix><id>"
// and indexes ids by creation time in a sorted set. It is an
// orchestrator.RunStore.
type RedisRunStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisRunStore connects to cfg.Address.
func NewRedisRunStore(cfg RedisConfig) (*RedisRunStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis at %s: %w", cfg.Address, err)
	}
	return &RedisRunStore{cfg: cfg, client: client}, nil
}

func (s *RedisRunStore) key(id string) string { return s.cfg.Prefix + id }

func (s *RedisRunStore) indexKey() string { return s.cfg.Prefix + "index" }

func (s *RedisRunStore) Save(ctx context.Context, v orchestrator.RunView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", v.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(v.ID), data, s.cfg.TTL)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(v.CreatedAt.UnixNano()), Member: v.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving run %s: %w", v.ID, err)
	}
	return nil
}

// Load returns orchestrator.ErrRunNotFound for an unknown or expired id.
func (s *RedisRunStore) Load(ctx context.Context, id string) (orchestrator.RunView, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orchestrator.RunView{}, fmt.Errorf("%w: %s", orchestrator.ErrRunNotFound, id)
	}
	if err != nil {
		return orchestrator.RunView{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return decodeRun(data)
}

// List returns every indexed run that has not expired, oldest first.
// Expired ids are pruned from the index.
func (s *RedisRunStore) List(ctx context.Context) ([]orchestrator.RunView, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading runs: %w", err)
	}
	views, expired, err := decodeRuns(ids, values)
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		members := make([]any, len(expired))
		for i, id := range expired {
			members[i] = id
		}
		if err := s.client.ZRem(ctx, s.indexKey(), members...).Err(); err != nil {
			return nil, fmt.Errorf("pruning expired runs: %w", err)
		}
	}
	return views, nil
}

func (s *RedisRunStore) Close() error {
	return s.client.Close()
}

func decodeRun(data []byte) (orchestrator.RunView, error) {
	var v orchestrator.RunView
	if err := json.Unmarshal(data, &v); err != nil {
		return orchestrator.RunView{}, fmt.Errorf("decoding run: %w", err)
	}
	return v, nil
}

// decodeRuns decodes MGET values; nil values are reported as expired ids.
func decodeRuns(ids []string, values []any) ([]orchestrator.RunView, []string, error) {
	views := make([]orchestrator.RunView, 0, len(values))
	var expired []string
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		v, err := decodeRun([]byte(str))
		if err != nil {
			return nil, nil, fmt.Errorf("run %s: %w", ids[i], err)
		}
		views = append(views, v)
	}
	return views, expired, nil
}
