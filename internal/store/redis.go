package store

import (
	"context"
	"fmt"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string // hash holding userId → credential
}

// RedisStore keeps credentials in a single redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
	log    *logging.Logger
}

// OpenRedis connects to redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, opts RedisOptions, log *logging.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	key := opts.Key
	if key == "" {
		key = "linebot:credentials"
	}

	s := &RedisStore{client: client, key: key, log: log.Sub("store.redis")}
	s.log.Info().Str("addr", opts.Addr).Str("key", key).Msg("connected to redis")
	return s, nil
}

func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	data, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, userID, credential string) error {
	if err := s.client.HSet(ctx, s.key, userID, credential).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
