package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alloy/dispatcher/internal/models"
)

const (
	redisKeyPrefix  = "dispatcher:"
	redisOrderKey   = redisKeyPrefix + "jobs"
	redisSeqKey     = redisKeyPrefix + "jobs:seq"
	redisMaxRetries = 16
)

// RedisStore keeps one JSON document per job and a sorted set of job ids
// scored by insertion sequence. Mutations are WATCH/MULTI transactions.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func jobKey(jobID string) string {
	return redisKeyPrefix + "job:" + jobID
}

func (s *RedisStore) Put(ctx context.Context, job models.Job) (models.Job, error) {
	if job.JobID == "" {
		return models.Job{}, ErrMissingJobID
	}
	var stored models.Job
	key := jobKey(job.JobID)
	err := s.retry(ctx, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			existing, found, err := readJob(ctx, tx, key)
			if err != nil {
				return err
			}
			stored = job.Clone()
			var seq int64
			if found {
				stored = mergeRedispatch(existing, job)
			} else {
				seq, err = s.rdb.Incr(ctx, redisSeqKey).Result()
				if err != nil {
					return err
				}
			}
			payload, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				if !found {
					pipe.ZAddNX(ctx, redisOrderKey, redis.Z{Score: float64(seq), Member: job.JobID})
				}
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return models.Job{}, fmt.Errorf("redis put job %s: %w", job.JobID, err)
	}
	return stored, nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (models.Job, bool, error) {
	job, found, err := readJob(ctx, s.rdb, jobKey(jobID))
	if err != nil {
		return models.Job{}, false, fmt.Errorf("redis get job %s: %w", jobID, err)
	}
	return job, found, nil
}

func (s *RedisStore) All(ctx context.Context) ([]models.Job, error) {
	ids, err := s.rdb.ZRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []models.Job{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, jobKey(id))
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load jobs: %w", err)
	}
	out := make([]models.Job, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job models.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("redis decode job %s: %w", ids[i], err)
		}
		out = append(out, job.Clone())
	}
	return out, nil
}

func (s *RedisStore) AddNotified(ctx context.Context, jobID, contractorRef string, at time.Time) (models.Job, error) {
	job, _, err := s.update(ctx, jobID, func(j *models.Job) bool {
		return addNotified(j, contractorRef, at)
	})
	return job, err
}

func (s *RedisStore) MarkAssigned(ctx context.Context, jobID, contractorRef, contractorName string, at time.Time) (models.Job, bool, error) {
	return s.update(ctx, jobID, func(j *models.Job) bool {
		return markAssigned(j, contractorRef, contractorName, at)
	})
}

// update applies fn to the stored job inside an optimistic transaction and
// writes it back only when fn reports a change.
func (s *RedisStore) update(ctx context.Context, jobID string, fn func(*models.Job) bool) (models.Job, bool, error) {
	key := jobKey(jobID)
	var (
		job     models.Job
		changed bool
	)
	err := s.retry(ctx, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, found, err := readJob(ctx, tx, key)
			if err != nil {
				return err
			}
			if !found {
				return ErrJobNotFound
			}
			changed = fn(&current)
			job = current
			if !changed {
				return nil
			}
			payload, err := json.Marshal(current)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return models.Job{}, false, err
		}
		return models.Job{}, false, fmt.Errorf("redis update job %s: %w", jobID, err)
	}
	return job.Clone(), changed, nil
}

func (s *RedisStore) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < redisMaxRetries; i++ {
		err = fn()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readJob(ctx context.Context, c stringGetter, key string) (models.Job, bool, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, err
	}
	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return models.Job{}, false, err
	}
	return job.Clone(), true, nil
}
