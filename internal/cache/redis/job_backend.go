package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Key layout, all under the client prefix:
//
//	rq:job:{key}   hash {state, data, attempts}
//	rq:waiting     list of job keys, FIFO
//	rq:delayed     zset scored by run-at (ms)
//	rq:active      zset scored by lease expiry (ms)
//	rq:completed   zset scored by eviction time (ms)
//	rq:failed      zset scored by eviction time (ms)
//
// Every state transition is one Lua script so concurrent workers in
// different processes never observe a half-moved job.

const enqueueLua = `
local st = redis.call('HGET', KEYS[1], 'state')
if st == 'waiting' or st == 'delayed' or st == 'active' then
    return 0
end
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'state', 'waiting', 'data', ARGV[2], 'attempts', 0)
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`

// KEYS: waiting, delayed, active. ARGV: now ms, lease ms, job hash prefix.
const dequeueLua = `
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, k in ipairs(due) do
    redis.call('ZREM', KEYS[2], k)
    redis.call('HSET', ARGV[3] .. k, 'state', 'waiting')
    redis.call('RPUSH', KEYS[1], k)
end
while true do
    local k = redis.call('LPOP', KEYS[1])
    if not k then
        return false
    end
    local hk = ARGV[3] .. k
    if redis.call('HGET', hk, 'state') == 'waiting' then
        local attempts = redis.call('HINCRBY', hk, 'attempts', 1)
        redis.call('HSET', hk, 'state', 'active')
        redis.call('ZADD', KEYS[3], tonumber(ARGV[1]) + tonumber(ARGV[2]), k)
        return {k, redis.call('HGET', hk, 'data'), attempts}
    end
end
`

// KEYS: job hash, active, completed. ARGV: key, evict-at ms.
const completeLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'state', 'completed')
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`

// KEYS: job hash, active, delayed. ARGV: key, data, attempts, run-at ms.
const retryLua = `
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'state', 'delayed', 'data', ARGV[2], 'attempts', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
return 1
`

// KEYS: job hash, waiting, delayed, active, failed. ARGV: key, data,
// attempts, evict-at ms.
const deadLetterLua = `
redis.call('LREM', KEYS[2], 0, ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('HSET', KEYS[1], 'state', 'failed', 'data', ARGV[2], 'attempts', ARGV[3])
redis.call('ZADD', KEYS[5], ARGV[4], ARGV[1])
return 1
`

// KEYS: waiting, delayed, active, completed, failed. ARGV: now ms, job hash
// prefix.
const maintainLua = `
local moved = 0
for _, src in ipairs({KEYS[2], KEYS[3]}) do
    local due = redis.call('ZRANGEBYSCORE', src, '-inf', ARGV[1])
    for _, k in ipairs(due) do
        redis.call('ZREM', src, k)
        redis.call('HSET', ARGV[2] .. k, 'state', 'waiting')
        redis.call('RPUSH', KEYS[1], k)
        moved = moved + 1
    end
end
for _, src in ipairs({KEYS[4], KEYS[5]}) do
    local old = redis.call('ZRANGEBYSCORE', src, '-inf', ARGV[1])
    for _, k in ipairs(old) do
        redis.call('ZREM', src, k)
        redis.call('DEL', ARGV[2] .. k)
    end
end
return moved
`

// JobBackend implements domain.JobBackend on Redis so several resolver
// processes can share one queue.
type JobBackend struct {
	c          *Client
	enqueue    *redis.Script
	dequeue    *redis.Script
	complete   *redis.Script
	retry      *redis.Script
	deadLetter *redis.Script
	maintain   *redis.Script
}

// NewJobBackend creates a JobBackend backed by c.
func NewJobBackend(c *Client) *JobBackend {
	return &JobBackend{
		c:          c,
		enqueue:    redis.NewScript(enqueueLua),
		dequeue:    redis.NewScript(dequeueLua),
		complete:   redis.NewScript(completeLua),
		retry:      redis.NewScript(retryLua),
		deadLetter: redis.NewScript(deadLetterLua),
		maintain:   redis.NewScript(maintainLua),
	}
}

func (b *JobBackend) jobPrefix() string     { return b.c.key("rq:job:") }
func (b *JobBackend) jobKey(k string) string { return b.jobPrefix() + k }
func (b *JobBackend) waiting() string        { return b.c.key("rq:waiting") }
func (b *JobBackend) delayed() string        { return b.c.key("rq:delayed") }
func (b *JobBackend) active() string         { return b.c.key("rq:active") }
func (b *JobBackend) completed() string      { return b.c.key("rq:completed") }
func (b *JobBackend) failed() string         { return b.c.key("rq:failed") }

// Enqueue implements domain.JobBackend.
func (b *JobBackend) Enqueue(ctx context.Context, job domain.ResolutionJob) (bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("redis: marshal job %s: %w", job.Key, err)
	}
	n, err := b.enqueue.Run(ctx, b.c.rdb,
		[]string{b.jobKey(job.Key), b.waiting(), b.completed(), b.failed()},
		job.Key, data,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: enqueue %s: %w", job.Key, err)
	}
	return n == 1, nil
}

// Dequeue implements domain.JobBackend.
func (b *JobBackend) Dequeue(ctx context.Context, now time.Time, lease time.Duration) (domain.ResolutionJob, bool, error) {
	res, err := b.dequeue.Run(ctx, b.c.rdb,
		[]string{b.waiting(), b.delayed(), b.active()},
		now.UnixMilli(), lease.Milliseconds(), b.jobPrefix(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return domain.ResolutionJob{}, false, nil
	}
	if err != nil {
		return domain.ResolutionJob{}, false, fmt.Errorf("redis: dequeue: %w", err)
	}
	if len(res) != 3 {
		return domain.ResolutionJob{}, false, fmt.Errorf("redis: dequeue: unexpected reply length %d", len(res))
	}

	data, _ := res[1].(string)
	attempts, _ := res[2].(int64)
	job, err := decodeJob(data, attempts)
	if err != nil {
		return domain.ResolutionJob{}, false, err
	}
	return job, true, nil
}

// Complete implements domain.JobBackend.
func (b *JobBackend) Complete(ctx context.Context, key string, now time.Time, retention time.Duration) error {
	err := b.complete.Run(ctx, b.c.rdb,
		[]string{b.jobKey(key), b.active(), b.completed()},
		key, now.Add(retention).UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: complete %s: %w", key, err)
	}
	return nil
}

// Retry implements domain.JobBackend.
func (b *JobBackend) Retry(ctx context.Context, job domain.ResolutionJob, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis: marshal job %s: %w", job.Key, err)
	}
	err = b.retry.Run(ctx, b.c.rdb,
		[]string{b.jobKey(job.Key), b.active(), b.delayed()},
		job.Key, data, job.Attempts, at.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: retry %s: %w", job.Key, err)
	}
	return nil
}

// DeadLetter implements domain.JobBackend.
func (b *JobBackend) DeadLetter(ctx context.Context, job domain.ResolutionJob, now time.Time, retention time.Duration) error {
	t := now.UTC()
	job.FailedAt = &t
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis: marshal job %s: %w", job.Key, err)
	}
	err = b.deadLetter.Run(ctx, b.c.rdb,
		[]string{b.jobKey(job.Key), b.waiting(), b.delayed(), b.active(), b.failed()},
		job.Key, data, job.Attempts, now.Add(retention).UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: dead-letter %s: %w", job.Key, err)
	}
	return nil
}

// Maintain implements domain.JobBackend.
func (b *JobBackend) Maintain(ctx context.Context, now time.Time) error {
	err := b.maintain.Run(ctx, b.c.rdb,
		[]string{b.waiting(), b.delayed(), b.active(), b.completed(), b.failed()},
		now.UnixMilli(), b.jobPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: maintain queue: %w", err)
	}
	return nil
}

// Counts implements domain.JobBackend.
func (b *JobBackend) Counts(ctx context.Context) (domain.JobCounts, error) {
	pipe := b.c.rdb.Pipeline()
	waiting := pipe.LLen(ctx, b.waiting())
	delayed := pipe.ZCard(ctx, b.delayed())
	active := pipe.ZCard(ctx, b.active())
	completed := pipe.ZCard(ctx, b.completed())
	failed := pipe.ZCard(ctx, b.failed())
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.JobCounts{}, fmt.Errorf("redis: queue counts: %w", err)
	}
	return domain.JobCounts{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Failed implements domain.JobBackend, newest first.
func (b *JobBackend) Failed(ctx context.Context, limit int) ([]domain.ResolutionJob, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	keys, err := b.c.rdb.ZRevRange(ctx, b.failed(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list failed jobs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := b.c.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, b.jobKey(k), "data", "attempts")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: load failed jobs: %w", err)
	}

	out := make([]domain.ResolutionJob, 0, len(keys))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil {
			continue
		}
		data, _ := vals[0].(string)
		attempts, _ := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		job, err := decodeJob(data, attempts)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func decodeJob(data string, attempts int64) (domain.ResolutionJob, error) {
	var job domain.ResolutionJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return domain.ResolutionJob{}, fmt.Errorf("redis: unmarshal job: %w", err)
	}
	job.Attempts = int(attempts)
	return job, nil
}

var _ domain.JobBackend = (*JobBackend)(nil)
