package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/wwwzy/MongoAgent/internal/errx"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

type RedisConfig struct {
	// URL 为空时使用进程内历史。
	URL          string        `mapstructure:"url" yaml:"url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// TTL 每次写入时刷新。
	TTL         time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxMessages int           `mapstructure:"max_messages" yaml:"max_messages" validate:"gte=0"`
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
		TTL:          24 * time.Hour,
		MaxMessages:  200,
	}
}

// New 解析 URL、建立连接并 Ping。
func (c RedisConfig) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errx.WrapRedis(err)
	}
	return client, nil
}

// Open 根据配置返回 Redis 或进程内实现；closeFn 总是可调用。
func Open(ctx context.Context, c RedisConfig) (repo Repository, closeFn func() error, err error) {
	if c.URL == "" {
		return NewMemoryRepository(c.MaxMessages), func() error { return nil }, nil
	}
	client, err := c.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	logx.Info().Msg("conversation history backed by redis")
	return NewRedisRepository(client, c.TTL, c.MaxMessages), client.Close, nil
}

type RedisRepository struct {
	rdb         redis.Cmdable
	ttl         time.Duration
	maxMessages int
}

var _ Repository = (*RedisRepository)(nil)

func NewRedisRepository(rdb redis.Cmdable, ttl time.Duration, maxMessages int) *RedisRepository {
	return &RedisRepository{rdb: rdb, ttl: ttl, maxMessages: maxMessages}
}

func (r *RedisRepository) conversationKey(conversationID string) string {
	return fmt.Sprintf("mongoagent:conversation:%s:messages", conversationID)
}

func (r *RedisRepository) AddMessages(ctx context.Context, conversationID string, msgs ...*schema.Message) error {
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, b)
	}
	if len(values) == 0 {
		return nil
	}
	key := r.conversationKey(conversationID)

	if err := r.rdb.RPush(ctx, key, values...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push message to redis")
		return errx.WrapRedis(err)
	}
	if r.maxMessages > 0 {
		if err := r.rdb.LTrim(ctx, key, int64(-r.maxMessages), -1).Err(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to trim conversation")
			return errx.WrapRedis(err)
		}
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on conversation key")
		}
	}
	return nil
}

func (r *RedisRepository) LoadHistory(ctx context.Context, conversationID string, limit int) ([]*schema.Message, error) {
	key := r.conversationKey(conversationID)

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	rows, err := r.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*schema.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func (r *RedisRepository) ClearHistory(ctx context.Context, conversationID string) error {
	key := r.conversationKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete conversation history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisRepository) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	key := r.conversationKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}
