package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lifeos/api/internal/search"
	"lifeos/api/internal/store"
	"lifeos/api/internal/summary"
	"lifeos/api/internal/util"
)

// validateDate accepts only strict ISO 8601 calendar dates (YYYY-MM-DD).
func validateDate(date string) error {
	if len(date) != len("2006-01-02") {
		return invalidDate(date)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return invalidDate(date)
	}
	return nil
}

// ResolveDay is the idempotent get-or-create for a user's day record.
//
// Ladder: found -> return unchanged; absent -> insert; insert lost the race
// (duplicate key) -> re-fetch; store unreachable at any step -> fabricate a
// transient record. It never fails from the caller's perspective except on a
// malformed date, and performs at most one write per call.
func (s *Service) ResolveDay(ctx context.Context, userID, date string) (store.Day, error) {
	if err := validateDate(date); err != nil {
		return store.Day{}, err
	}

	if day, ok := s.cachedTransient(userID, date); ok {
		return day, nil
	}

	day, err := s.getDayByDate(ctx, userID, date)
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return s.transientDay(userID, date, err), nil
	}

	inserted, err := s.insertDay(ctx, userID, date)
	if err == nil {
		s.indexDay(inserted)
		return inserted, nil
	}
	if errors.Is(err, store.ErrDuplicateDay) {
		// Another resolution won the race; its row is authoritative.
		day, err := s.getDayByDate(ctx, userID, date)
		if err == nil {
			return day, nil
		}
		return s.transientDay(userID, date, err), nil
	}
	return s.transientDay(userID, date, err), nil
}

// GetDay fetches an existing day without creating one. Absence is NotFound;
// an unreachable store degrades to a transient record like resolution does.
func (s *Service) GetDay(ctx context.Context, userID, date string) (store.Day, error) {
	if err := validateDate(date); err != nil {
		return store.Day{}, err
	}
	if day, ok := s.cachedTransient(userID, date); ok {
		return day, nil
	}
	day, err := s.getDayByDate(ctx, userID, date)
	if err == nil {
		return day, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.Day{}, err
	}
	return s.transientDay(userID, date, err), nil
}

func (s *Service) getDayByDate(ctx context.Context, userID, date string) (store.Day, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetDayByDate(sctx, userID, date)
}

func (s *Service) insertDay(ctx context.Context, userID, date string) (store.Day, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.InsertDay(sctx, store.Day{
		ID:     util.NewID("day"),
		UserID: userID,
		Date:   date,
	})
}

// UpdateDay applies a partial update. Unset fields are left untouched and
// updated_at advances. Transient days are patched in the cache only.
func (s *Service) UpdateDay(ctx context.Context, id string, patch store.DayPatch) (store.Day, error) {
	if store.IsTransientID(id) {
		return s.updateTransient(id, patch), nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	day, err := s.store.UpdateDay(sctx, id, patch)
	if err != nil {
		return store.Day{}, err
	}
	s.indexDay(day)
	return day, nil
}

// DeleteDay removes a day. The success flag reports whether a record existed.
func (s *Service) DeleteDay(ctx context.Context, userID, date string) (bool, error) {
	if err := validateDate(date); err != nil {
		return false, err
	}
	if s.dropTransient(userID, date) {
		return true, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	day, err := s.store.GetDayByDate(sctx, userID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	deleted, err := s.store.DeleteDay(sctx, userID, date)
	if err != nil {
		return false, err
	}
	if deleted && s.search != nil {
		s.search.DeleteDay(day.ID)
	}
	return deleted, nil
}

func (s *Service) ListDays(ctx context.Context, userID, startDate, endDate string) ([]store.Day, error) {
	if err := validateDate(startDate); err != nil {
		return nil, err
	}
	if err := validateDate(endDate); err != nil {
		return nil, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListDays(sctx, userID, startDate, endDate)
}

// RegenerateSummary resolves the day, renders a fresh summary from its note
// and todo stats, and saves it through the day mutator.
func (s *Service) RegenerateSummary(ctx context.Context, userID, date string) (store.Day, error) {
	day, err := s.ResolveDay(ctx, userID, date)
	if err != nil {
		return store.Day{}, err
	}

	todos, err := s.ListTodosForDay(ctx, day.ID)
	if err != nil {
		return store.Day{}, err
	}
	completed := 0
	for _, todo := range todos {
		if todo.IsCompleted {
			completed++
		}
	}

	text, err := s.summary.Generate(ctx, summary.Input{
		Date:           day.Date,
		DailyNote:      day.DailyNote,
		TotalTodos:     len(todos),
		CompletedTodos: completed,
	})
	if err != nil {
		return store.Day{}, err
	}
	return s.UpdateDay(ctx, day.ID, store.DayPatch{Summary: &text})
}

// transient cache

func transientKey(userID, date string) string {
	return userID + "|" + date
}

func (s *Service) cachedTransient(userID, date string) (store.Day, bool) {
	s.transientMu.Lock()
	defer s.transientMu.Unlock()
	id, ok := s.transientIndex[transientKey(userID, date)]
	if !ok {
		return store.Day{}, false
	}
	return s.transientDays[id], true
}

func (s *Service) transientDay(userID, date string, cause error) store.Day {
	s.transientMu.Lock()
	defer s.transientMu.Unlock()

	key := transientKey(userID, date)
	if id, ok := s.transientIndex[key]; ok {
		return s.transientDays[id]
	}

	now := time.Now().UTC()
	day := store.Day{
		ID:        util.NewID("dev"),
		UserID:    userID,
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.transientDays[day.ID] = day
	s.transientIndex[key] = day.ID
	s.logger.WithError(cause).WithField("date", date).Warn("store unreachable, serving transient day")
	return day
}

func (s *Service) updateTransient(id string, patch store.DayPatch) store.Day {
	s.transientMu.Lock()
	defer s.transientMu.Unlock()

	day, ok := s.transientDays[id]
	if !ok {
		now := time.Now().UTC()
		day = store.Day{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	if patch.DailyNote != nil {
		day.DailyNote = *patch.DailyNote
	}
	if patch.Summary != nil {
		day.Summary = *patch.Summary
	}
	day.UpdatedAt = time.Now().UTC()
	s.transientDays[id] = day
	if day.UserID != "" && day.Date != "" {
		s.transientIndex[transientKey(day.UserID, day.Date)] = day.ID
	}
	return day
}

func (s *Service) dropTransient(userID, date string) bool {
	s.transientMu.Lock()
	defer s.transientMu.Unlock()
	key := transientKey(userID, date)
	id, ok := s.transientIndex[key]
	if !ok {
		return false
	}
	delete(s.transientIndex, key)
	delete(s.transientDays, id)
	return true
}

func (s *Service) transientDayByID(id string) (store.Day, bool) {
	s.transientMu.Lock()
	defer s.transientMu.Unlock()
	day, ok := s.transientDays[id]
	return day, ok
}

func (s *Service) indexDay(day store.Day) {
	if s.search == nil || store.IsTransientID(day.ID) {
		return
	}
	s.search.IndexDay(search.DayRecord{
		ID:        day.ID,
		UserID:    day.UserID,
		Date:      day.Date,
		DailyNote: day.DailyNote,
		Summary:   day.Summary,
	})
}
