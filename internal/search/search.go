package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDay   ResultType = "day"
	ResultTodo  ResultType = "todo"
	ResultEmail ResultType = "email"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	DayID   string     `json:"day_id"`
	Date    string     `json:"date,omitempty"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request. UserID is mandatory: results are always
// scoped to the requesting user.
type Query struct {
	Text       string
	UserID     string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DayRecord is the data we index for a day.
type DayRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	DailyNote string `json:"dailyNote"`
	Summary   string `json:"summary"`
}

// TodoRecord is the data we index for a todo.
type TodoRecord struct {
	ID     string `json:"id"`
	DayID  string `json:"dayId"`
	UserID string `json:"userId"`
	Title  string `json:"title"`
}

// EmailRecord is the data we index for an email item.
type EmailRecord struct {
	ID      string `json:"id"`
	DayID   string `json:"dayId"`
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}
