package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/pixelverse/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, x int, y int) (models.PixelRecord, error) {
	args := m.Called(ctx, x, y)
	return args.Get(0).(models.PixelRecord), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, record models.PixelRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStore) EnumerateAll(ctx context.Context) ([]models.PixelRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PixelRecord), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, x int, y int) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) AppendHistory(ctx context.Context, entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, entries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoryEntry), args.Error(1)
}

func (m *MockStore) GetHistory(ctx context.Context, x int, y int, limit int) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, x, y, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoryEntry), args.Error(1)
}
