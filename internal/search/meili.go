package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const (
	idxDays   = "lifeos_days"
	idxTodos  = "lifeos_todos"
	idxEmails = "lifeos_emails"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *logrus.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An unreachable
// instance is tolerated; the health loop reconfigures on recovery.
func NewMeili(url, apiKey string, logger *logrus.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.WithField("url", url).WithError(err).Warn("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxDays,
			filterable: []string{"userId", "date"},
			searchable: []string{"dailyNote", "summary", "date"},
		},
		{
			uid:        idxTodos,
			filterable: []string{"userId", "dayId"},
			searchable: []string{"title"},
		},
		{
			uid:        idxEmails,
			filterable: []string{"userId", "dayId"},
			searchable: []string{"subject", "sender", "content"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			m.logger.WithField("index", idx.uid).WithError(err).Debug("search: create index (may already exist)")
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			m.logger.WithField("index", idx.uid).WithError(err).Warn("search: update filterable attrs")
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.logger.WithField("index", idx.uid).WithError(err).Warn("search: update searchable attrs")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the day, todo, and email indexes (or a filtered subset) and
// merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxDays, ResultDay},
		{idxTodos, ResultTodo},
		{idxEmails, ResultEmail},
	}

	var queries []*meili.SearchRequest
	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			Filter:                []string{fmt.Sprintf("userId = %q", q.UserID)},
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxDays:
		return ResultDay
	case idxTodos:
		return ResultTodo
	case idxEmails:
		return ResultEmail
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.DayID = decodeString(hit, "dayId")
	r.Date = decodeString(hit, "date")

	switch rtyp {
	case ResultDay:
		r.DayID = r.ID
		r.Title = r.Date
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "dailyNote"), decodeString(hit, "dailyNote"),
			decodeFormattedString(hit, "summary"), decodeString(hit, "summary"))
	case ResultTodo:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	case ResultEmail:
		r.Title = firstNonBlank(decodeFormattedString(hit, "subject"), decodeString(hit, "subject"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexDay adds or updates a day in the search index.
func (m *Meili) IndexDay(d DayRecord) error {
	_, err := m.client.Index(idxDays).AddDocuments([]DayRecord{d}, nil)
	return err
}

// IndexTodo adds or updates a todo in the search index.
func (m *Meili) IndexTodo(t TodoRecord) error {
	_, err := m.client.Index(idxTodos).AddDocuments([]TodoRecord{t}, nil)
	return err
}

// IndexEmail adds or updates an email in the search index.
func (m *Meili) IndexEmail(e EmailRecord) error {
	_, err := m.client.Index(idxEmails).AddDocuments([]EmailRecord{e}, nil)
	return err
}

// DeleteDay removes a day from the search index.
func (m *Meili) DeleteDay(id string) error {
	_, err := m.client.Index(idxDays).DeleteDocument(id, nil)
	return err
}

// DeleteTodo removes a todo from the search index.
func (m *Meili) DeleteTodo(id string) error {
	_, err := m.client.Index(idxTodos).DeleteDocument(id, nil)
	return err
}

// DeleteEmail removes an email from the search index.
func (m *Meili) DeleteEmail(id string) error {
	_, err := m.client.Index(idxEmails).DeleteDocument(id, nil)
	return err
}

// IndexDays bulk-indexes days.
func (m *Meili) IndexDays(days []DayRecord) error {
	if len(days) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDays).AddDocuments(days, nil)
	return err
}

// IndexTodos bulk-indexes todos.
func (m *Meili) IndexTodos(todos []TodoRecord) error {
	if len(todos) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTodos).AddDocuments(todos, nil)
	return err
}

// IndexEmails bulk-indexes emails.
func (m *Meili) IndexEmails(emails []EmailRecord) error {
	if len(emails) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEmails).AddDocuments(emails, nil)
	return err
}
