package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockBalanceProvider struct {
	mock.Mock
}

func (m *MockBalanceProvider) Balance(ctx context.Context, wallet string) (float64, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(float64), args.Error(1)
}
