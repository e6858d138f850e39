package localizer

import (
	"github.com/stretchr/testify/mock"
)

// MockDeleter is a testify mock of the Deleter interface.
type MockDeleter struct {
	mock.Mock
}

// NewMockDeleter creates a new MockDeleter.
func NewMockDeleter() *MockDeleter {
	return &MockDeleter{}
}

// Delete implements Deleter.
func (d *MockDeleter) Delete(user string, path string) {
	d.Mock.Called(user, path)
}
