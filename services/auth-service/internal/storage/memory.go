package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/users"
)

// Memory is a process-local users.Store for development and tests.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]users.User
	byEmail map[string]string
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]users.User{}, byEmail: map[string]string{}}
}

var _ users.Store = (*Memory)(nil)

func (m *Memory) CreateUser(_ context.Context, u users.User) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, taken := m.byEmail[key]; taken {
		return users.User{}, users.ErrEmailTaken
	}
	u.ID = uuid.NewString()
	m.byID[u.ID] = u
	m.byEmail[key] = u.ID
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) GetUser(_ context.Context, id string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (m *Memory) UpdateProfile(_ context.Context, u users.User) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[u.ID]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	cur.FullName, cur.Phone, cur.UpdatedAt = u.FullName, u.Phone, u.UpdatedAt
	m.byID[u.ID] = cur
	return cur, nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	cur.PasswordHash, cur.UpdatedAt = hash, at
	m.byID[id] = cur
	return nil
}
