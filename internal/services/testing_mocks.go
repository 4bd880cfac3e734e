package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/models"
)

// MockServiceAdapter implements adapters.ServiceAdapter for testing within the services package
type MockServiceAdapter struct {
	mock.Mock
	name string
}

func NewMockServiceAdapter(name string) *MockServiceAdapter {
	return &MockServiceAdapter{name: name}
}

func (m *MockServiceAdapter) Name() string { return m.name }

func (m *MockServiceAdapter) Fetch(ctx context.Context, params adapters.Params) models.FetchResult {
	args := m.Called(ctx, params)
	return args.Get(0).(models.FetchResult)
}
