package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/pipeline"
)

// DefaultRedisPrefix namespaces job keys.
const DefaultRedisPrefix = "reel:jobs:"

// RedisRegistry stores each job as a JSON string with a TTL and keeps a
// sorted index of job IDs by creation time.
type RedisRegistry struct {
	client redis.UniversalClient
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

var createScript = redis.NewScript(`
	local key = KEYS[1]
	local index_key = KEYS[2]
	local data = ARGV[1]
	local ttl = tonumber(ARGV[2])
	local id = ARGV[3]
	local score = tonumber(ARGV[4])
	local ok = redis.call('SET', key, data, 'PX', ttl, 'NX')
	if not ok then
		return 0
	end
	redis.call('ZADD', index_key, score, id)
	return 1
`)

var listScript = redis.NewScript(`
	local index_key = KEYS[1]
	local prefix = ARGV[1]
	local ids = redis.call('ZRANGE', index_key, 0, -1)
	local result = {}
	local expired = {}
	for i, id in ipairs(ids) do
		local job = redis.call('GET', prefix .. id)
		if job then
			table.insert(result, job)
		else
			table.insert(expired, id)
		end
	end
	for i, id in ipairs(expired) do
		redis.call('ZREM', index_key, id)
	end
	return result
`)

var progressScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl = tonumber(ARGV[1])
	local progress = ARGV[2]
	local now = ARGV[3]
	local data = redis.call('GET', key)
	if not data then
		return 0
	end
	local job = cjson.decode(data)
	job.progress = cjson.decode(progress)
	job.updated_at = now
	redis.call('SET', key, cjson.encode(job), 'PX', ttl)
	return 1
`)

// NewRedisRegistry creates a Redis-backed registry. A non-positive ttl
// keeps jobs for a day.
func NewRedisRegistry(client redis.UniversalClient, log logger.Logger, prefix string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RedisRegistry{
		client: client,
		logger: logger.WithComponent(log, "job_registry"),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) key(id string) string { return r.prefix + id }
func (r *RedisRegistry) indexKey() string     { return r.prefix + "index" }

func (r *RedisRegistry) Create(ctx context.Context, job *Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	created, err := createScript.Run(ctx, r.client,
		[]string{r.key(job.ID), r.indexKey()},
		data, r.ttl.Milliseconds(), job.ID, job.CreatedAt.UnixNano()).Int()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrJobExists)
	}

	r.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"input":  job.Input,
	}).Debug("Job registered")
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Job, error) {
	values, err := listScript.Run(ctx, r.client, []string{r.indexKey()}, r.prefix).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	for _, value := range values {
		var job Job
		if err := json.Unmarshal([]byte(value), &job); err != nil {
			r.logger.WithError(err).Warn("Skipping malformed job record")
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (r *RedisRegistry) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	updated, err := r.client.SetXX(ctx, r.key(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if !updated {
		return fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
	}

	r.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	}).Debug("Job updated")
	return nil
}

func (r *RedisRegistry) UpdateProgress(ctx context.Context, id string, stats pipeline.Stats) error {
	progress, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	now := time.Now().Format(time.RFC3339Nano)
	updated, err := progressScript.Run(ctx, r.client, []string{r.key(id)},
		r.ttl.Milliseconds(), string(progress), now).Int()
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return nil
}

func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	if err := r.client.ZRem(ctx, r.indexKey(), id).Err(); err != nil {
		r.logger.Warnf("Failed to remove job %s from index: %v", id, err)
	}
	return nil
}

// Close leaves the client open; it is owned by the caller.
func (r *RedisRegistry) Close() error {
	return nil
}

var _ Registry = (*RedisRegistry)(nil)
