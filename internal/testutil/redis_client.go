package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type MockRedisClient struct {
	ExistFunc  func(ctx context.Context, key string) (bool, error)
	DelFunc    func(ctx context.Context, key ...string) error
	SetObjFunc func(ctx context.Context, key string, obj any, ttl time.Duration) error
	GetObjFunc func(ctx context.Context, key string, v any) error
	MSetFunc   func(ctx context.Context, kv map[string]any) error
}

func (m *MockRedisClient) Exist(ctx context.Context, key string) (bool, error) {
	if m.ExistFunc != nil {
		return m.ExistFunc(ctx, key)
	}

	return false, nil
}

func (m *MockRedisClient) Del(ctx context.Context, key ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, key...)
	}

	return nil
}

func (m *MockRedisClient) SetObj(ctx context.Context, key string, obj any, ttl time.Duration) error {
	if m.SetObjFunc != nil {
		return m.SetObjFunc(ctx, key, obj, ttl)
	}

	return nil
}

func (m *MockRedisClient) GetObj(ctx context.Context, key string, v any) error {
	if m.GetObjFunc != nil {
		return m.GetObjFunc(ctx, key, v)
	}

	return redis.Nil
}

func (m *MockRedisClient) MSet(ctx context.Context, kv map[string]any) error {
	if m.MSetFunc != nil {
		return m.MSetFunc(ctx, kv)
	}

	return nil
}

// InMemoryRedisClient stores marshaled values in a map, close enough to the
// real client for repository tests.
type InMemoryRedisClient struct {
	mutex sync.Mutex
	data  map[string][]byte
}

func NewInMemoryRedisClient() *InMemoryRedisClient {
	return &InMemoryRedisClient{data: map[string][]byte{}}
}

func (m *InMemoryRedisClient) Exist(ctx context.Context, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, ok := m.data[key]
	return ok, nil
}

func (m *InMemoryRedisClient) Del(ctx context.Context, keys ...string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}

	return nil
}

func (m *InMemoryRedisClient) SetObj(ctx context.Context, key string, obj any, ttl time.Duration) error {
	blob, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = blob
	return nil
}

func (m *InMemoryRedisClient) GetObj(ctx context.Context, key string, v any) error {
	m.mutex.Lock()
	blob, ok := m.data[key]
	m.mutex.Unlock()

	if !ok {
		return redis.Nil
	}

	return json.Unmarshal(blob, v)
}

func (m *InMemoryRedisClient) MSet(ctx context.Context, kv map[string]any) error {
	for key, value := range kv {
		if err := m.SetObj(ctx, key, value, 0); err != nil {
			return err
		}
	}

	return nil
}
