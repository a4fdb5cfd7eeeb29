package store

import (
	"github.com/stretchr/testify/mock"

	"github.com/wishpop/wishpop/internal/types"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRoom(themeId string) (types.Room, error) {
	args := m.Called(themeId)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockStore) GetRoom(code string) (types.Room, error) {
	args := m.Called(code)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockStore) EnsureRoom(code, themeId string) (types.Room, error) {
	args := m.Called(code, themeId)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockStore) SetTheme(code, themeId string) error {
	args := m.Called(code, themeId)
	return args.Error(0)
}

func (m *MockStore) CreateMessage(roomCode, text string) (types.Message, error) {
	args := m.Called(roomCode, text)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *MockStore) PopMessage(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStore) Messages(roomCode string) ([]types.Message, error) {
	args := m.Called(roomCode)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) SubscribeMessages(roomCode string) *Subscription[[]types.Message] {
	args := m.Called(roomCode)
	return args.Get(0).(*Subscription[[]types.Message])
}

func (m *MockStore) SubscribeRoom(code string) *Subscription[*types.Room] {
	args := m.Called(code)
	return args.Get(0).(*Subscription[*types.Room])
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
