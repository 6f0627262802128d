package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
	"event-companion-sync/internal/infra/metrics"
	red "event-companion-sync/internal/infra/redis"
)

var _ repository.SyncJobRepository = (*syncJobRepoCacheDecorator)(nil)

// syncJobRepoCacheDecorator serves Get from Redis for the monitor's polling
// reads. Reads inside a transaction always go to the inner repository.
type syncJobRepoCacheDecorator struct {
	inner repository.SyncJobRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewSyncJobRepoCacheDecorator(inner repository.SyncJobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SyncJobRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &syncJobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func syncJobCacheKey(id string) string { return "sync_job:" + id }

// syncJobVersionKey holds the UpdatedAt (unix micros) of the newest write
// seen for a job, committed or not.
func syncJobVersionKey(id string) string { return "sync_job:ver:" + id }

// fillScript caches ARGV[1] unless a newer write has been announced in
// KEYS[2]. ARGV[2] is the snapshot's version, ARGV[3] the ttl in ms.
const fillScript = `
local v = redis.call('GET', KEYS[2])
if v and tonumber(v) > tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`

func (d *syncJobRepoCacheDecorator) Get(ctx context.Context, tx repository.Tx, id string) (*model.SyncJob, error) {
	if tx != nil {
		return d.inner.Get(ctx, tx, id)
	}
	key := syncJobCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var job model.SyncJob
		if json.Unmarshal([]byte(val), &job) == nil {
			metrics.IncCacheRequest("sync_job", "hit")
			return &job, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("sync job cache read failed")
	}

	metrics.IncCacheRequest("sync_job", "miss")
	job, err := d.inner.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, job)
	return job, nil
}

func (d *syncJobRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, job *model.SyncJob) error {
	if err := d.inner.Create(ctx, tx, job); err != nil {
		return err
	}
	d.invalidate(ctx, job.ID)
	return nil
}

// Update drops the cached copy before and after the write. The entry is not
// refreshed here because the surrounding transaction may still roll back.
// The new version is announced before the second drop, so a reader still
// holding the previous row (or reading it before commit) cannot put it back.
func (d *syncJobRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, id string, patch repository.JobPatch) (*model.SyncJob, error) {
	d.invalidate(ctx, id)
	job, err := d.inner.Update(ctx, tx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Set(ctx, syncJobVersionKey(id), job.UpdatedAt.UnixMicro(), 2*d.ttl); err != nil {
		d.log.Warn().Err(err).Str("job_id", id).Msg("sync job version write failed")
	}
	d.invalidate(ctx, id)
	return job, nil
}

func (d *syncJobRepoCacheDecorator) List(ctx context.Context, tx repository.Tx, filter model.JobFilter) iter.Seq2[*model.SyncJob, error] {
	return d.inner.List(ctx, tx, filter)
}

func (d *syncJobRepoCacheDecorator) store(ctx context.Context, job *model.SyncJob) {
	b, err := json.Marshal(job)
	if err != nil {
		return
	}
	keys := []string{syncJobCacheKey(job.ID), syncJobVersionKey(job.ID)}
	res, err := d.cache.Eval(ctx, fillScript, keys, string(b), job.UpdatedAt.UnixMicro(), d.ttl.Milliseconds())
	if err != nil {
		d.log.Warn().Err(err).Str("job_id", job.ID).Msg("sync job cache write failed")
		return
	}
	if n, _ := res.(int64); n == 0 {
		d.log.Debug().Str("job_id", job.ID).Msg("stale sync job not cached")
	}
}

func (d *syncJobRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, syncJobCacheKey(id)); err != nil {
		d.log.Warn().Err(err).Str("job_id", id).Msg("sync job cache invalidation failed")
	}
}
