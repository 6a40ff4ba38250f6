package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/dapurkue/stockledger/inventory"
)

// MemoryUsers is an in-memory UserStore for tests and the memory driver.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User)}
}

func (m *MemoryUsers) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.ID != u.ID && strings.EqualFold(other.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryUsers) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, &inventory.NotFoundError{Kind: "user", ID: id}
	}
	return u, nil
}

func (m *MemoryUsers) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, &inventory.NotFoundError{Kind: "user", ID: email}
}
