package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService stores each file under {prefix}{name} and appends the name
// to the {prefix}index list, so consumers can follow segments in order.
type RedisService struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisService(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisService {
	if prefix == "" {
		prefix = "reel:uploads:"
	}
	return &RedisService{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisService) UploadFile(ctx context.Context, file File) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+file.Name, file.Payload, s.ttl)
		pipe.RPush(ctx, s.prefix+"index", file.Name)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.prefix+"index", s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s in redis: %w", file.Name, err)
	}
	return nil
}

// Names returns the stored file names in upload order.
func (s *RedisService) Names(ctx context.Context) ([]string, error) {
	return s.client.LRange(ctx, s.prefix+"index", 0, -1).Result()
}

// Get returns a stored file's payload.
func (s *RedisService) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("upload %s not found", name)
	}
	return data, err
}
