package mocks

import (
	"github.com/brettbedarf/stashfs"
	"github.com/stretchr/testify/mock"
)

var _ stashfs.Cipher = (*MockCipher)(nil)

// MockCipher implements stashfs.Cipher for testing across packages
type MockCipher struct {
	mock.Mock
}

func (m *MockCipher) Encrypt(plaintext []byte) ([]byte, error) {
	args := m.Called(plaintext)

	// Handle function return types (for transforming tests)
	if fn, ok := args.Get(0).(func([]byte) []byte); ok {
		return fn(plaintext), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCipher) Decrypt(token []byte) ([]byte, error) {
	args := m.Called(token)

	if fn, ok := args.Get(0).(func([]byte) []byte); ok {
		return fn(token), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
