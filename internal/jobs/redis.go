package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient interface for Redis operations
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// finalizeScript swaps the job document only if it still holds the value
// the caller read: 1 swapped, 0 changed underneath, -1 gone.
const finalizeScript = `
local current = redis.call("GET", KEYS[1])
if not current then
	return -1
end
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
return 1
`

const finalizeAttempts = 3

// RedisStore keeps each job as a JSON document under <prefix>:job:<id> and
// indexes ids by start time in the sorted set <prefix>:jobs.
type RedisStore struct {
	redis     RedisClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStore creates a job store on rdb. A zero ttl keeps jobs forever.
func NewRedisStore(rdb RedisClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "slareport"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{redis: rdb, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) Create(ctx context.Context, job Job) error {
	val, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	created, err := s.redis.SetNX(ctx, s.jobKey(job.ID), val, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}

	score := float64(job.StartedAt.UnixMilli())
	if err := s.redis.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}
	s.pruneIndex(ctx, job.StartedAt)
	return nil
}

// Finalize applies outcome with a compare-and-swap, so of two concurrent
// finalizers exactly one wins and the other sees ErrAlreadyFinalized.
func (s *RedisStore) Finalize(ctx context.Context, id string, outcome Outcome) error {
	if err := outcome.validate(); err != nil {
		return err
	}
	for attempt := 0; attempt < finalizeAttempts; attempt++ {
		job, raw, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := job.apply(outcome); err != nil {
			return err
		}
		val, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", id, err)
		}
		swapped, err := s.redis.Eval(ctx, finalizeScript, []string{s.jobKey(id)}, raw, string(val)).Int64()
		if err != nil {
			return fmt.Errorf("store job %s: %w", id, err)
		}
		switch swapped {
		case 1:
			return nil
		case -1:
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s.logger.Debug("job changed during finalize, retrying", zap.String("job_id", id))
	}
	return fmt.Errorf("store job %s: document kept changing", id)
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	job, _, err := s.load(ctx, id)
	return job, err
}

// load returns the job and the raw document it was decoded from.
func (s *RedisStore) load(ctx context.Context, id string) (Job, string, error) {
	val, err := s.redis.Get(ctx, s.jobKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Job{}, "", fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return Job{}, "", fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, val, nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	ids, err := s.redis.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	out := make([]Job, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// expired between the index read and the fetch
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.logger.Warn("skipping undecodable job", zap.String("job_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// pruneIndex drops index entries whose documents have already expired.
func (s *RedisStore) pruneIndex(ctx context.Context, now time.Time) {
	if s.ttl <= 0 {
		return
	}
	cutoff := strconv.FormatInt(now.Add(-s.ttl).UnixMilli(), 10)
	if err := s.redis.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+cutoff).Err(); err != nil {
		s.logger.Warn("job index prune failed", zap.Error(err))
	}
}

func (s *RedisStore) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", s.keyPrefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + ":jobs"
}
