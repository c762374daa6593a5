package store

import (
	"context"
	"errors"
)

// ErrDuplicateDay is returned by InsertDay when another resolution already
// created the (user_id, date) row. Callers re-fetch and treat it as found.
var ErrDuplicateDay = errors.New("day already exists")

// TodoStore is the day-scoped todo collection. Implemented by PostgresStore
// for persisted days and MemoryCollections for transient ones.
type TodoStore interface {
	ListTodos(ctx context.Context, dayID string) ([]Todo, error)
	InsertTodo(ctx context.Context, todo Todo) (Todo, error)
	UpdateTodo(ctx context.Context, id string, patch TodoPatch) (Todo, error)
	DeleteTodo(ctx context.Context, id string) (bool, error)
}

// EmailStore is the day-scoped email collection.
type EmailStore interface {
	ListEmails(ctx context.Context, dayID string) ([]Email, error)
	InsertEmail(ctx context.Context, email Email) (Email, error)
	UpdateEmail(ctx context.Context, id string, patch EmailPatch) (Email, error)
	DeleteEmail(ctx context.Context, id string) (bool, error)
}
