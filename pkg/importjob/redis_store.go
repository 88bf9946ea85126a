package importjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "importjob:"
	// keys outlive the retention window so a stalled sweep cannot leak them forever
	defaultRedisTTL    = 48 * time.Hour
	maxOptimisticTries = 5
)

// RedisStore shares jobs between instances. Each job is one JSON string key;
// updates use WATCH/MULTI so concurrent advances never interleave.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func WithKeyTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("importjob: redis client is required")
	}
	s := &RedisStore{client: client, prefix: defaultRedisPrefix, ttl: defaultRedisTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Insert(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	return s.get(ctx, s.client, id)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, id string) (Job, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Job) error) (Job, error) {
	key := s.key(id)

	for range maxOptimisticTries {
		var result Job
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			job, err := s.get(ctx, tx, id)
			if err != nil {
				return err
			}
			before := job.clone()
			if err := fn(&job); err != nil {
				result = before
				return err
			}

			data, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("encode job: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
				return nil
			})
			result = job
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return Job{}, ErrConflict
}

func (s *RedisStore) List(ctx context.Context) ([]Job, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	jobs := make([]Job, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisStore) DeleteIfUnchanged(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	key := s.key(id)
	deleted := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		job, err := s.get(ctx, tx, id)
		if errors.Is(err, ErrJobNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !job.UpdatedAt.Equal(updatedAt) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	// a concurrent write means the job changed; leave it for the next sweep
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return deleted, err
}
