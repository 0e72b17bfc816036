package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockValidator is a mock implementation of the refs.Validator interface
type MockValidator struct {
	mock.Mock
}

// NewMockValidator creates a new mock validator
func NewMockValidator(t *testing.T) *MockValidator {
	mockValidator := &MockValidator{}
	mockValidator.Test(t)
	return mockValidator
}

// Exists mocks single-reference resolution
func (m *MockValidator) Exists(ctx context.Context, kind store.RefKind, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, kind, id)
	return args.Bool(0), args.Error(1)
}

// ExistsAll mocks batch resolution; it returns the missing ids
func (m *MockValidator) ExistsAll(ctx context.Context, kind store.RefKind, ids []uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, kind, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// Helper methods for setting up common mock expectations

// ExpectExists sets up expectation for Exists
func (m *MockValidator) ExpectExists(kind store.RefKind, id uuid.UUID, exists bool) *mock.Call {
	return m.On("Exists", mock.Anything, kind, id).Return(exists, nil)
}

// ExpectAllValid sets up ExistsAll to report no missing ids for any input
func (m *MockValidator) ExpectAllValid(kind store.RefKind) *mock.Call {
	return m.On("ExistsAll", mock.Anything, kind, mock.Anything).Return(nil, nil)
}
