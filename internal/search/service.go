package search

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *logrus.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *logrus.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WithError(err).Warn("search: meilisearch error, falling back to pgfts")
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.WithError(err).Error("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDay indexes a day (fire-and-forget to Meilisearch).
func (s *Service) IndexDay(d DayRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDay(d); err != nil {
			s.logger.WithField("id", d.ID).WithError(err).Warn("search: index day")
		}
	}()
}

// IndexTodo indexes a todo (fire-and-forget to Meilisearch).
func (s *Service) IndexTodo(t TodoRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTodo(t); err != nil {
			s.logger.WithField("id", t.ID).WithError(err).Warn("search: index todo")
		}
	}()
}

// IndexEmail indexes an email (fire-and-forget to Meilisearch).
func (s *Service) IndexEmail(e EmailRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEmail(e); err != nil {
			s.logger.WithField("id", e.ID).WithError(err).Warn("search: index email")
		}
	}()
}

// DeleteDay removes a day from the search index (fire-and-forget).
func (s *Service) DeleteDay(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDay(id); err != nil {
			s.logger.WithField("id", id).WithError(err).Warn("search: delete day")
		}
	}()
}

// DeleteTodo removes a todo from the search index (fire-and-forget).
func (s *Service) DeleteTodo(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTodo(id); err != nil {
			s.logger.WithField("id", id).WithError(err).Warn("search: delete todo")
		}
	}()
}

// DeleteEmail removes an email from the search index (fire-and-forget).
func (s *Service) DeleteEmail(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEmail(id); err != nil {
			s.logger.WithField("id", id).WithError(err).Warn("search: delete email")
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into
// Meilisearch. Called during bootstrap when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	days, todos, emails, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("search: reindex load failed")
		return
	}
	if err := s.meili.IndexDays(days); err != nil {
		s.logger.WithError(err).Warn("search: reindex days")
	}
	if err := s.meili.IndexTodos(todos); err != nil {
		s.logger.WithError(err).Warn("search: reindex todos")
	}
	if err := s.meili.IndexEmails(emails); err != nil {
		s.logger.WithError(err).Warn("search: reindex emails")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
