package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/pixelverse/cache"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) GetQuotaState(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Bool(1), args.Error(2)
}

func (m *MockCache) UpdateQuotaState(ctx context.Context, key string, ttl time.Duration, update cache.UpdateFunc) error {
	args := m.Called(ctx, key, ttl, update)
	return args.Error(0)
}

func (m *MockCache) GetCachedBalance(ctx context.Context, wallet string) (float64, bool, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (m *MockCache) SetCachedBalance(ctx context.Context, wallet string, balance float64, ttl time.Duration) error {
	args := m.Called(ctx, wallet, balance, ttl)
	return args.Error(0)
}
