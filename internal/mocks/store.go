package mocks

import (
	"github.com/brettbedarf/stashfs"
	"github.com/stretchr/testify/mock"
)

var _ stashfs.Store = (*MockStore)(nil)

// MockStore implements stashfs.Store for testing across packages
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(key string) ([]byte, bool, error) {
	args := m.Called(key)

	// Handle nil returns
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockStore) Save(key string, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}
