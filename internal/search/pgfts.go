package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down the day resolver is already
// in degraded mode and search returns empty results upstream.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across days, todos, and emails using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Todos and emails
// join through days to scope by user.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.UserID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultDay {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'day'::text AS type, d.id, d.id AS day_id,
				to_char(d.date, 'YYYY-MM-DD') AS date,
				to_char(d.date, 'YYYY-MM-DD') AS title,
				ts_headline('english', coalesce(d.daily_note, '') || ' ' || coalesce(d.summary, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(d.fts, %s) AS rank
			FROM days d
			WHERE d.user_id = $2 AND d.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultTodo {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'todo'::text AS type, t.id, t.day_id,
				to_char(d.date, 'YYYY-MM-DD') AS date,
				t.title,
				ts_headline('english', coalesce(t.title, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(t.fts, %s) AS rank
			FROM todos t
			JOIN days d ON d.id = t.day_id
			WHERE d.user_id = $2 AND t.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultEmail {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'email'::text AS type, e.id, e.day_id,
				to_char(d.date, 'YYYY-MM-DD') AS date,
				e.subject AS title,
				ts_headline('english', coalesce(e.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(e.fts, %s) AS rank
			FROM emails e
			JOIN days d ON d.id = e.day_id
			WHERE d.user_id = $2 AND e.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, day_id, date, title, snippet
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.DayID, &r.Date, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DayRecord, []TodoRecord, []EmailRecord, error) {
	dayRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, to_char(date, 'YYYY-MM-DD'), daily_note, summary
		FROM days
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load days: %w", err)
	}
	defer dayRows.Close()

	days := make([]DayRecord, 0)
	for dayRows.Next() {
		var d DayRecord
		if err := dayRows.Scan(&d.ID, &d.UserID, &d.Date, &d.DailyNote, &d.Summary); err != nil {
			return nil, nil, nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, d)
	}
	if err := dayRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate days: %w", err)
	}

	todoRows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.day_id, d.user_id, t.title
		FROM todos t
		JOIN days d ON d.id = t.day_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load todos: %w", err)
	}
	defer todoRows.Close()

	todos := make([]TodoRecord, 0)
	for todoRows.Next() {
		var t TodoRecord
		if err := todoRows.Scan(&t.ID, &t.DayID, &t.UserID, &t.Title); err != nil {
			return nil, nil, nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := todoRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate todos: %w", err)
	}

	emailRows, err := p.db.QueryContext(ctx, `
		SELECT e.id, e.day_id, d.user_id, e.subject, e.sender, e.content
		FROM emails e
		JOIN days d ON d.id = e.day_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load emails: %w", err)
	}
	defer emailRows.Close()

	emails := make([]EmailRecord, 0)
	for emailRows.Next() {
		var e EmailRecord
		if err := emailRows.Scan(&e.ID, &e.DayID, &e.UserID, &e.Subject, &e.Sender, &e.Content); err != nil {
			return nil, nil, nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, e)
	}
	if err := emailRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate emails: %w", err)
	}

	return days, todos, emails, nil
}
