package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/notify"
)

// Memory is a process-local notify.Store for development and tests.
type Memory struct {
	mu     sync.Mutex
	seen   map[string]bool
	byUser map[string][]notify.Notification
}

func NewMemory() *Memory {
	return &Memory{seen: map[string]bool{}, byUser: map[string][]notify.Notification{}}
}

var _ notify.Store = (*Memory)(nil)

func (m *Memory) Apply(_ context.Context, eventID, _ string, ns []notify.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	for _, n := range ns {
		n.ID = uuid.NewString()
		m.byUser[n.UserID] = append(m.byUser[n.UserID], n)
	}
	return true, nil
}

func (m *Memory) List(_ context.Context, userID string, limit, offset int) ([]notify.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append([]notify.Notification(nil), m.byUser[userID]...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []notify.Notification{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *Memory) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, x := range m.byUser[userID] {
		if !x.Read {
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUser[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return nil
		}
	}
	return notify.ErrNotFound
}

func (m *Memory) MarkAllRead(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUser[userID]
	n := 0
	for i := range list {
		if !list[i].Read {
			list[i].Read = true
			n++
		}
	}
	return n, nil
}
