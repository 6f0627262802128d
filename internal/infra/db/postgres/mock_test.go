//go:build !integration

package postgres

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
	red "event-companion-sync/internal/infra/redis"
)

// mockInnerJobRepo stands in for the database repository behind the cache.
type mockInnerJobRepo struct {
	CreateFunc func(ctx context.Context, tx repository.Tx, job *model.SyncJob) error
	GetFunc    func(ctx context.Context, tx repository.Tx, id string) (*model.SyncJob, error)
	UpdateFunc func(ctx context.Context, tx repository.Tx, id string, patch repository.JobPatch) (*model.SyncJob, error)
	ListFunc   func(ctx context.Context, tx repository.Tx, filter model.JobFilter) iter.Seq2[*model.SyncJob, error]
}

var _ repository.SyncJobRepository = (*mockInnerJobRepo)(nil)

func (m *mockInnerJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.SyncJob) error {
	return m.CreateFunc(ctx, tx, job)
}
func (m *mockInnerJobRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.SyncJob, error) {
	return m.GetFunc(ctx, tx, id)
}
func (m *mockInnerJobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch repository.JobPatch) (*model.SyncJob, error) {
	return m.UpdateFunc(ctx, tx, id, patch)
}
func (m *mockInnerJobRepo) List(ctx context.Context, tx repository.Tx, filter model.JobFilter) iter.Seq2[*model.SyncJob, error] {
	return m.ListFunc(ctx, tx, filter)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	EvalFunc   func(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if m.EvalFunc == nil {
		return int64(1), nil
	}
	return m.EvalFunc(ctx, script, keys, args...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }

// fakeRedis keeps values in a map and runs the job cache fill script the way
// the server would.
type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) client() *mockRedisClient {
	return &mockRedisClient{
		GetFunc: func(ctx context.Context, key string) (string, error) {
			v, ok := f.data[key]
			if !ok {
				return "", redis.Nil
			}
			return v, nil
		},
		SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
			f.data[key] = fmt.Sprint(value)
			return nil
		},
		DelFunc: func(ctx context.Context, keys ...string) error {
			for _, k := range keys {
				delete(f.data, k)
			}
			return nil
		},
		EvalFunc: func(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
			if v, ok := f.data[keys[1]]; ok {
				seen, _ := strconv.ParseInt(v, 10, 64)
				if seen > args[1].(int64) {
					return int64(0), nil
				}
			}
			f.data[keys[0]] = fmt.Sprint(args[0])
			return int64(1), nil
		},
	}
}
