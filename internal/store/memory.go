package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MemoryCollections keeps day-scoped todos and emails in process memory. It
// backs transient (dev_) days while the database is unreachable and doubles as
// a test double for the collection interfaces. Nothing here survives a
// restart.
type MemoryCollections struct {
	mu     sync.Mutex
	todos  map[string]Todo
	emails map[string]Email
}

func NewMemoryCollections() *MemoryCollections {
	return &MemoryCollections{
		todos:  make(map[string]Todo),
		emails: make(map[string]Email),
	}
}

func (m *MemoryCollections) ListTodos(_ context.Context, dayID string) ([]Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]Todo, 0)
	for _, todo := range m.todos {
		if todo.DayID == dayID {
			items = append(items, todo)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (m *MemoryCollections) InsertTodo(_ context.Context, todo Todo) (Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}
	todo.UpdatedAt = now
	m.todos[todo.ID] = todo
	return todo, nil
}

func (m *MemoryCollections) UpdateTodo(_ context.Context, id string, patch TodoPatch) (Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	todo, ok := m.todos[id]
	if !ok {
		return Todo{}, sql.ErrNoRows
	}
	if patch.Title != nil {
		todo.Title = *patch.Title
	}
	if patch.IsCompleted != nil {
		todo.IsCompleted = *patch.IsCompleted
	}
	todo.UpdatedAt = time.Now()
	m.todos[id] = todo
	return todo, nil
}

func (m *MemoryCollections) DeleteTodo(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.todos[id]; !ok {
		return false, nil
	}
	delete(m.todos, id)
	return true, nil
}

func (m *MemoryCollections) ListEmails(_ context.Context, dayID string) ([]Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]Email, 0)
	for _, email := range m.emails {
		if email.DayID == dayID {
			items = append(items, email)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (m *MemoryCollections) InsertEmail(_ context.Context, email Email) (Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now
	m.emails[email.ID] = email
	return email, nil
}

func (m *MemoryCollections) UpdateEmail(_ context.Context, id string, patch EmailPatch) (Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email, ok := m.emails[id]
	if !ok {
		return Email{}, sql.ErrNoRows
	}
	if patch.Subject != nil {
		email.Subject = *patch.Subject
	}
	if patch.Sender != nil {
		email.Sender = *patch.Sender
	}
	if patch.Recipient != nil {
		email.Recipient = *patch.Recipient
	}
	if patch.Content != nil {
		email.Content = *patch.Content
	}
	if patch.IsRead != nil {
		email.IsRead = *patch.IsRead
	}
	if patch.IsArchived != nil {
		email.IsArchived = *patch.IsArchived
	}
	email.UpdatedAt = time.Now()
	m.emails[id] = email
	return email, nil
}

func (m *MemoryCollections) DeleteEmail(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emails[id]; !ok {
		return false, nil
	}
	delete(m.emails, id)
	return true, nil
}
