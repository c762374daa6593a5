package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"lifeos/api/internal/config"
	"lifeos/api/internal/store"
)

type fakeStore struct {
	*store.MemoryCollections

	pingFn             func(context.Context) error
	getUserByIDFn      func(context.Context, string) (store.User, error)
	ensureUserByNameFn func(context.Context, string, string) (store.User, error)
	getDayByDateFn     func(context.Context, string, string) (store.Day, error)
	getDayByIDFn       func(context.Context, string) (store.Day, error)
	insertDayFn        func(context.Context, store.Day) (store.Day, error)
	updateDayFn        func(context.Context, string, store.DayPatch) (store.Day, error)
	deleteDayFn        func(context.Context, string, string) (bool, error)
	listDaysFn         func(context.Context, string, string, string) ([]store.Day, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryCollections: store.NewMemoryCollections()}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: "Test"}, nil
}
func (f *fakeStore) EnsureUserByName(ctx context.Context, name, email string) (store.User, error) {
	if f.ensureUserByNameFn != nil {
		return f.ensureUserByNameFn(ctx, name, email)
	}
	return store.User{ID: "usr_dev", DisplayName: name, Email: email}, nil
}
func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }
func (f *fakeStore) GetDayByDate(ctx context.Context, userID, date string) (store.Day, error) {
	if f.getDayByDateFn != nil {
		return f.getDayByDateFn(ctx, userID, date)
	}
	return store.Day{}, sql.ErrNoRows
}
func (f *fakeStore) GetDayByID(ctx context.Context, id string) (store.Day, error) {
	if f.getDayByIDFn != nil {
		return f.getDayByIDFn(ctx, id)
	}
	return store.Day{}, sql.ErrNoRows
}
func (f *fakeStore) InsertDay(ctx context.Context, day store.Day) (store.Day, error) {
	if f.insertDayFn != nil {
		return f.insertDayFn(ctx, day)
	}
	day.CreatedAt = time.Now()
	day.UpdatedAt = day.CreatedAt
	return day, nil
}
func (f *fakeStore) UpdateDay(ctx context.Context, id string, patch store.DayPatch) (store.Day, error) {
	if f.updateDayFn != nil {
		return f.updateDayFn(ctx, id, patch)
	}
	return store.Day{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteDay(ctx context.Context, userID, date string) (bool, error) {
	if f.deleteDayFn != nil {
		return f.deleteDayFn(ctx, userID, date)
	}
	return false, nil
}
func (f *fakeStore) ListDays(ctx context.Context, userID, startDate, endDate string) ([]store.Day, error) {
	if f.listDaysFn != nil {
		return f.listDaysFn(ctx, userID, startDate, endDate)
	}
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:    "test-secret",
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		StoreTimeout: time.Second,
		DevUserName:  "dev",
		DevUserEmail: "dev@example.com",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(fs *fakeStore) *Service {
	return New(testConfig(), fs, nil, nil, nil, nil, quietLogger())
}

func TestResolveDayReturnsExistingUnchanged(t *testing.T) {
	existing := store.Day{ID: "day_abc", UserID: "usr_1", Date: "2025-01-15", DailyNote: "note"}
	fs := newFakeStore()
	fs.getDayByDateFn = func(_ context.Context, userID, date string) (store.Day, error) {
		if userID != "usr_1" || date != "2025-01-15" {
			t.Fatalf("unexpected lookup %s %s", userID, date)
		}
		return existing, nil
	}
	fs.insertDayFn = func(context.Context, store.Day) (store.Day, error) {
		t.Fatal("insert must not run when the day exists")
		return store.Day{}, nil
	}

	svc := newTestService(fs)
	day, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if day != existing {
		t.Errorf("resolved day mutated: %+v", day)
	}
}

func TestResolveDayCreatesWhenAbsent(t *testing.T) {
	fs := newFakeStore()
	inserts := 0
	fs.insertDayFn = func(_ context.Context, day store.Day) (store.Day, error) {
		inserts++
		if !strings.HasPrefix(day.ID, "day_") {
			t.Errorf("expected day_ id, got %q", day.ID)
		}
		if day.DailyNote != "" || day.Summary != "" {
			t.Errorf("new day must have empty content fields: %+v", day)
		}
		day.CreatedAt = time.Now()
		day.UpdatedAt = day.CreatedAt
		return day, nil
	}

	svc := newTestService(fs)
	day, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if inserts != 1 {
		t.Fatalf("expected exactly one insert, got %d", inserts)
	}
	if day.UserID != "usr_1" || day.Date != "2025-01-15" {
		t.Errorf("unexpected day %+v", day)
	}
}

func TestResolveDayDuplicateInsertRefetches(t *testing.T) {
	winner := store.Day{ID: "day_winner", UserID: "usr_1", Date: "2025-01-15"}
	fs := newFakeStore()
	gets := 0
	fs.getDayByDateFn = func(context.Context, string, string) (store.Day, error) {
		gets++
		if gets == 1 {
			return store.Day{}, sql.ErrNoRows
		}
		return winner, nil
	}
	fs.insertDayFn = func(context.Context, store.Day) (store.Day, error) {
		return store.Day{}, store.ErrDuplicateDay
	}

	svc := newTestService(fs)
	day, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if day.ID != "day_winner" {
		t.Errorf("expected the winning row, got %+v", day)
	}
	if gets != 2 {
		t.Errorf("expected a re-fetch after the duplicate insert, got %d gets", gets)
	}
}

func TestResolveDayInvalidDateSkipsStore(t *testing.T) {
	fs := newFakeStore()
	fs.getDayByDateFn = func(context.Context, string, string) (store.Day, error) {
		t.Fatal("store must not be contacted for a malformed date")
		return store.Day{}, nil
	}

	svc := newTestService(fs)
	for _, date := range []string{"not-a-date", "2025-1-15", "2025-02-30", "20250115", "2025-01-15T00:00:00Z"} {
		_, err := svc.ResolveDay(context.Background(), "usr_1", date)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != 400 || domainErr.Code != "INVALID_DATE" {
			t.Errorf("date %q: expected INVALID_DATE 400, got %v", date, err)
		}
	}
}

func TestResolveDayDegradesToStableTransient(t *testing.T) {
	fs := newFakeStore()
	fs.getDayByDateFn = func(context.Context, string, string) (store.Day, error) {
		return store.Day{}, errors.New("dial tcp: connection refused")
	}

	svc := newTestService(fs)
	first, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve must not fail during an outage: %v", err)
	}
	if !store.IsTransientID(first.ID) {
		t.Fatalf("expected dev_ id, got %q", first.ID)
	}
	if first.UserID != "usr_1" || first.Date != "2025-01-15" {
		t.Errorf("transient day must be schema-valid: %+v", first)
	}

	second, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("transient identity changed across resolutions: %q vs %q", first.ID, second.ID)
	}

	note := "written during outage"
	updated, err := svc.UpdateDay(context.Background(), first.ID, store.DayPatch{DailyNote: &note})
	if err != nil {
		t.Fatalf("update transient: %v", err)
	}
	if updated.DailyNote != note {
		t.Errorf("transient patch lost: %+v", updated)
	}
	if updated.Summary != "" {
		t.Errorf("unspecified field changed: %+v", updated)
	}
	if !updated.UpdatedAt.After(first.UpdatedAt) && !updated.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("updated_at went backwards")
	}

	again, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.DailyNote != note {
		t.Errorf("edits not retained across resolutions: %+v", again)
	}
}

func TestResolveDayDegradesOnInsertFailure(t *testing.T) {
	fs := newFakeStore()
	fs.insertDayFn = func(context.Context, store.Day) (store.Day, error) {
		return store.Day{}, errors.New("write: broken pipe")
	}

	svc := newTestService(fs)
	day, err := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !store.IsTransientID(day.ID) {
		t.Errorf("expected transient fallback, got %+v", day)
	}
}

func TestUpdateDayMergesPatch(t *testing.T) {
	fs := newFakeStore()
	var got store.DayPatch
	fs.updateDayFn = func(_ context.Context, id string, patch store.DayPatch) (store.Day, error) {
		got = patch
		return store.Day{ID: id, DailyNote: *patch.DailyNote, Summary: "kept", UpdatedAt: time.Now()}, nil
	}

	svc := newTestService(fs)
	note := "fresh note"
	day, err := svc.UpdateDay(context.Background(), "day_abc", store.DayPatch{DailyNote: &note})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Summary != nil {
		t.Errorf("unset field must stay nil in the patch")
	}
	if day.Summary != "kept" {
		t.Errorf("unspecified field overwritten: %+v", day)
	}
}

func TestUpdateDayMissingRowIsNotFound(t *testing.T) {
	fs := newFakeStore()
	fs.updateDayFn = func(context.Context, string, store.DayPatch) (store.Day, error) {
		return store.Day{}, sql.ErrNoRows
	}
	svc := newTestService(fs)
	_, err := svc.UpdateDay(context.Background(), "day_gone", store.DayPatch{})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows passthrough, got %v", err)
	}
	status, code, _, _ := mapError(err)
	if status != 404 || code != "NOT_FOUND" {
		t.Errorf("expected 404 NOT_FOUND, got %d %s", status, code)
	}
}

func TestDeleteDayDropsTransient(t *testing.T) {
	fs := newFakeStore()
	outage := errors.New("connection reset")
	fs.getDayByDateFn = func(context.Context, string, string) (store.Day, error) {
		return store.Day{}, outage
	}

	svc := newTestService(fs)
	first, _ := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")

	deleted, err := svc.DeleteDay(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected success flag for cached transient day")
	}

	next, _ := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")
	if next.ID == first.ID {
		t.Errorf("deleted transient day resurrected with the same identity")
	}
}

func TestResolveUpdateReResolveRoundTrip(t *testing.T) {
	// Stateful fake: behaves like the real table with its unique constraint.
	days := make(map[string]store.Day)
	fs := newFakeStore()
	fs.getDayByDateFn = func(_ context.Context, userID, date string) (store.Day, error) {
		day, ok := days[userID+"|"+date]
		if !ok {
			return store.Day{}, sql.ErrNoRows
		}
		return day, nil
	}
	fs.insertDayFn = func(_ context.Context, day store.Day) (store.Day, error) {
		key := day.UserID + "|" + day.Date
		if _, ok := days[key]; ok {
			return store.Day{}, store.ErrDuplicateDay
		}
		day.CreatedAt = time.Now()
		day.UpdatedAt = day.CreatedAt
		days[key] = day
		return day, nil
	}
	fs.updateDayFn = func(_ context.Context, id string, patch store.DayPatch) (store.Day, error) {
		for key, day := range days {
			if day.ID != id {
				continue
			}
			if patch.DailyNote != nil {
				day.DailyNote = *patch.DailyNote
			}
			if patch.Summary != nil {
				day.Summary = *patch.Summary
			}
			day.UpdatedAt = day.UpdatedAt.Add(time.Millisecond)
			days[key] = day
			return day, nil
		}
		return store.Day{}, sql.ErrNoRows
	}

	svc := newTestService(fs)
	ctx := context.Background()

	created, err := svc.ResolveDay(ctx, "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	note := "wrote the design doc"
	if _, err := svc.UpdateDay(ctx, created.ID, store.DayPatch{DailyNote: &note}); err != nil {
		t.Fatalf("update: %v", err)
	}

	resolved, err := svc.ResolveDay(ctx, "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if resolved.ID != created.ID {
		t.Errorf("identity changed across resolutions")
	}
	if resolved.DailyNote != note {
		t.Errorf("resolution mutated content: %+v", resolved)
	}
}

func TestRegenerateSummary(t *testing.T) {
	day := store.Day{ID: "day_abc", UserID: "usr_1", Date: "2025-01-15", DailyNote: "Shipped it"}
	fs := newFakeStore()
	fs.getDayByDateFn = func(context.Context, string, string) (store.Day, error) {
		return day, nil
	}
	fs.getDayByIDFn = func(context.Context, string) (store.Day, error) {
		return day, nil
	}
	var savedSummary string
	fs.updateDayFn = func(_ context.Context, id string, patch store.DayPatch) (store.Day, error) {
		if patch.Summary == nil {
			t.Fatal("summary patch missing")
		}
		savedSummary = *patch.Summary
		updated := day
		updated.Summary = savedSummary
		return updated, nil
	}

	svc := newTestService(fs)
	done := true
	if _, err := svc.CreateTodo(context.Background(), CreateTodoInput{DayID: "day_abc", Title: "review PR"}); err != nil {
		t.Fatalf("create todo: %v", err)
	}
	todo, err := svc.CreateTodo(context.Background(), CreateTodoInput{DayID: "day_abc", Title: "write tests"})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if _, err := svc.UpdateTodo(context.Background(), todo.ID, store.TodoPatch{IsCompleted: &done}); err != nil {
		t.Fatalf("complete todo: %v", err)
	}

	result, err := svc.RegenerateSummary(context.Background(), "usr_1", "2025-01-15")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if !strings.Contains(savedSummary, "2 tasks: 1 completed, 1 pending") {
		t.Errorf("summary stats wrong: %q", savedSummary)
	}
	if !strings.Contains(savedSummary, "Shipped it") {
		t.Errorf("summary missing note: %q", savedSummary)
	}
	if result.Summary != savedSummary {
		t.Errorf("returned day missing saved summary")
	}
}

func TestTodosUnderTransientDayStayInMemory(t *testing.T) {
	fs := newFakeStore()
	fs.getDayByDateFn = func(context.Context, string, string) (store.Day, error) {
		return store.Day{}, errors.New("no route to host")
	}

	svc := newTestService(fs)
	day, _ := svc.ResolveDay(context.Background(), "usr_1", "2025-01-15")

	todo, err := svc.CreateTodo(context.Background(), CreateTodoInput{DayID: day.ID, Title: "offline task"})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if !store.IsTransientID(todo.ID) {
		t.Errorf("todo under a transient day must carry a dev_ id, got %q", todo.ID)
	}

	todos, err := svc.ListTodosForDay(context.Background(), day.ID)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if len(todos) != 1 || todos[0].Title != "offline task" {
		t.Errorf("unexpected todos %+v", todos)
	}
}

func TestCreateTodoValidation(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.CreateTodo(context.Background(), CreateTodoInput{DayID: "day_abc"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	fs := newFakeStore()
	fs.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
		return store.User{ID: id, DisplayName: "Avery", Email: "avery@example.com"}, nil
	}

	svc := newTestService(fs)
	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if parsed.UserID != "usr_1" || parsed.UserName != "Avery" {
		t.Errorf("unexpected session %+v", parsed)
	}
}
