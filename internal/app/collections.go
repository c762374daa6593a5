package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"lifeos/api/internal/search"
	"lifeos/api/internal/store"
	"lifeos/api/internal/util"
)

// Todos and emails hang off a day. Records under a transient (dev_) day live
// in the in-memory collections and carry dev_ ids themselves; records under a
// persisted day go to Postgres.

type CreateTodoInput struct {
	DayID string `json:"day_id" validate:"required"`
	Title string `json:"title" validate:"required,max=500"`
}

type CreateEmailInput struct {
	DayID      string     `json:"day_id" validate:"required"`
	Subject    string     `json:"subject" validate:"required,max=500"`
	Sender     string     `json:"sender" validate:"max=320"`
	Recipient  string     `json:"recipient" validate:"max=320"`
	Content    string     `json:"content"`
	ReceivedAt *time.Time `json:"received_at"`
}

func (s *Service) todoStoreFor(id string) store.TodoStore {
	if store.IsTransientID(id) {
		return s.memory
	}
	return s.store
}

func (s *Service) emailStoreFor(id string) store.EmailStore {
	if store.IsTransientID(id) {
		return s.memory
	}
	return s.store
}

// dayForCollections verifies the parent day exists before attaching records.
func (s *Service) dayForCollections(ctx context.Context, dayID string) (store.Day, error) {
	if store.IsTransientID(dayID) {
		day, ok := s.transientDayByID(dayID)
		if !ok {
			return store.Day{}, sql.ErrNoRows
		}
		return day, nil
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetDayByID(sctx, dayID)
}

func (s *Service) ListTodosForDay(ctx context.Context, dayID string) ([]store.Todo, error) {
	if strings.TrimSpace(dayID) == "" {
		return nil, validationError("day_id is required", nil)
	}
	return s.todoStoreFor(dayID).ListTodos(ctx, dayID)
}

func (s *Service) CreateTodo(ctx context.Context, input CreateTodoInput) (store.Todo, error) {
	if err := s.validate.Struct(input); err != nil {
		return store.Todo{}, validationError("invalid todo", s.fieldErrors(err))
	}
	day, err := s.dayForCollections(ctx, input.DayID)
	if err != nil {
		return store.Todo{}, err
	}

	prefix := "todo"
	if store.IsTransientID(day.ID) {
		prefix = "dev"
	}
	todo, err := s.todoStoreFor(day.ID).InsertTodo(ctx, store.Todo{
		ID:    util.NewID(prefix),
		DayID: day.ID,
		Title: strings.TrimSpace(input.Title),
	})
	if err != nil {
		return store.Todo{}, err
	}
	s.indexTodo(day, todo)
	return todo, nil
}

func (s *Service) UpdateTodo(ctx context.Context, id string, patch store.TodoPatch) (store.Todo, error) {
	todo, err := s.todoStoreFor(id).UpdateTodo(ctx, id, patch)
	if err != nil {
		return store.Todo{}, err
	}
	if !store.IsTransientID(id) {
		if day, err := s.dayForCollections(ctx, todo.DayID); err == nil {
			s.indexTodo(day, todo)
		}
	}
	return todo, nil
}

func (s *Service) DeleteTodo(ctx context.Context, id string) (bool, error) {
	deleted, err := s.todoStoreFor(id).DeleteTodo(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted && !store.IsTransientID(id) && s.search != nil {
		s.search.DeleteTodo(id)
	}
	return deleted, nil
}

func (s *Service) ListEmailsForDay(ctx context.Context, dayID string) ([]store.Email, error) {
	if strings.TrimSpace(dayID) == "" {
		return nil, validationError("day_id is required", nil)
	}
	return s.emailStoreFor(dayID).ListEmails(ctx, dayID)
}

func (s *Service) CreateEmail(ctx context.Context, input CreateEmailInput) (store.Email, error) {
	if err := s.validate.Struct(input); err != nil {
		return store.Email{}, validationError("invalid email item", s.fieldErrors(err))
	}
	day, err := s.dayForCollections(ctx, input.DayID)
	if err != nil {
		return store.Email{}, err
	}

	prefix := "eml"
	if store.IsTransientID(day.ID) {
		prefix = "dev"
	}
	email, err := s.emailStoreFor(day.ID).InsertEmail(ctx, store.Email{
		ID:         util.NewID(prefix),
		DayID:      day.ID,
		Subject:    strings.TrimSpace(input.Subject),
		Sender:     strings.TrimSpace(input.Sender),
		Recipient:  strings.TrimSpace(input.Recipient),
		Content:    input.Content,
		ReceivedAt: input.ReceivedAt,
	})
	if err != nil {
		return store.Email{}, err
	}
	s.indexEmail(day, email)
	return email, nil
}

func (s *Service) UpdateEmail(ctx context.Context, id string, patch store.EmailPatch) (store.Email, error) {
	email, err := s.emailStoreFor(id).UpdateEmail(ctx, id, patch)
	if err != nil {
		return store.Email{}, err
	}
	if !store.IsTransientID(id) {
		if day, err := s.dayForCollections(ctx, email.DayID); err == nil {
			s.indexEmail(day, email)
		}
	}
	return email, nil
}

func (s *Service) DeleteEmail(ctx context.Context, id string) (bool, error) {
	deleted, err := s.emailStoreFor(id).DeleteEmail(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted && !store.IsTransientID(id) && s.search != nil {
		s.search.DeleteEmail(id)
	}
	return deleted, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) indexTodo(day store.Day, todo store.Todo) {
	if s.search == nil || store.IsTransientID(todo.ID) {
		return
	}
	s.search.IndexTodo(search.TodoRecord{
		ID:     todo.ID,
		DayID:  todo.DayID,
		UserID: day.UserID,
		Title:  todo.Title,
	})
}

func (s *Service) indexEmail(day store.Day, email store.Email) {
	if s.search == nil || store.IsTransientID(email.ID) {
		return
	}
	s.search.IndexEmail(search.EmailRecord{
		ID:      email.ID,
		DayID:   email.DayID,
		UserID:  day.UserID,
		Subject: email.Subject,
		Sender:  email.Sender,
		Content: email.Content,
	})
}

// errNotFound normalizes the store's no-rows sentinel for handlers.
func errNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
