package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- users ----

const userColumns = `id, display_name, email, password_hash, is_email_verified, verification_token, verification_expires_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.IsEmailVerified, &user.VerificationToken, &user.VerificationExpiresAt,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// EnsureUserByName looks up the user with the given display name, creating it
// on first use. This backs the development identity fallback.
func (s *PostgresStore) EnsureUserByName(ctx context.Context, name, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE display_name=$1`, name))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	return scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name, email, is_email_verified)
		VALUES ('usr_' || encode(gen_random_bytes(16), 'hex'), $1, $2, TRUE)
		ON CONFLICT (display_name) DO UPDATE SET updated_at=NOW()
		RETURNING `+userColumns, name, email))
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions and token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.is_email_verified,
			u.verification_token, u.verification_expires_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- days ----

const dayColumns = `id, user_id, to_char(date, 'YYYY-MM-DD'), daily_note, summary, created_at, updated_at`

func scanDay(row *sql.Row) (Day, error) {
	var day Day
	err := row.Scan(&day.ID, &day.UserID, &day.Date, &day.DailyNote, &day.Summary,
		&day.CreatedAt, &day.UpdatedAt)
	if err != nil {
		return Day{}, err
	}
	return day, nil
}

func (s *PostgresStore) GetDayByDate(ctx context.Context, userID, date string) (Day, error) {
	return scanDay(s.db.QueryRowContext(ctx,
		`SELECT `+dayColumns+` FROM days WHERE user_id=$1 AND date=$2::date`, userID, date))
}

func (s *PostgresStore) GetDayByID(ctx context.Context, id string) (Day, error) {
	return scanDay(s.db.QueryRowContext(ctx,
		`SELECT `+dayColumns+` FROM days WHERE id=$1`, id))
}

// InsertDay creates the row for (day.UserID, day.Date). A concurrent creation
// surfaces as ErrDuplicateDay via the unique constraint.
func (s *PostgresStore) InsertDay(ctx context.Context, day Day) (Day, error) {
	inserted, err := scanDay(s.db.QueryRowContext(ctx, `
		INSERT INTO days (id, user_id, date, daily_note, summary)
		VALUES ($1, $2, $3::date, $4, $5)
		RETURNING `+dayColumns,
		day.ID, day.UserID, day.Date, day.DailyNote, day.Summary))
	if err != nil {
		if isUniqueViolation(err) {
			return Day{}, ErrDuplicateDay
		}
		return Day{}, fmt.Errorf("insert day: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateDay(ctx context.Context, id string, patch DayPatch) (Day, error) {
	return scanDay(s.db.QueryRowContext(ctx, `
		UPDATE days
		SET daily_note=COALESCE($2, daily_note),
			summary=COALESCE($3, summary),
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+dayColumns, id, patch.DailyNote, patch.Summary))
}

func (s *PostgresStore) DeleteDay(ctx context.Context, userID, date string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM days WHERE user_id=$1 AND date=$2::date`, userID, date)
	if err != nil {
		return false, fmt.Errorf("delete day: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete day rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListDays(ctx context.Context, userID, startDate, endDate string) ([]Day, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dayColumns+`
		FROM days
		WHERE user_id=$1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date DESC
	`, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer rows.Close()

	items := make([]Day, 0)
	for rows.Next() {
		var day Day
		if err := rows.Scan(&day.ID, &day.UserID, &day.Date, &day.DailyNote, &day.Summary,
			&day.CreatedAt, &day.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		items = append(items, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}
	return items, nil
}

// ---- todos ----

const todoColumns = `id, day_id, title, is_completed, created_at, updated_at`

func (s *PostgresStore) ListTodos(ctx context.Context, dayID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE day_id=$1 ORDER BY created_at ASC`, dayID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	items := make([]Todo, 0)
	for rows.Next() {
		var todo Todo
		if err := rows.Scan(&todo.ID, &todo.DayID, &todo.Title, &todo.IsCompleted,
			&todo.CreatedAt, &todo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		items = append(items, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTodo(ctx context.Context, todo Todo) (Todo, error) {
	var inserted Todo
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO todos (id, day_id, title, is_completed)
		VALUES ($1, $2, $3, $4)
		RETURNING `+todoColumns,
		todo.ID, todo.DayID, todo.Title, todo.IsCompleted,
	).Scan(&inserted.ID, &inserted.DayID, &inserted.Title, &inserted.IsCompleted,
		&inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateTodo(ctx context.Context, id string, patch TodoPatch) (Todo, error) {
	var updated Todo
	err := s.db.QueryRowContext(ctx, `
		UPDATE todos
		SET title=COALESCE($2, title),
			is_completed=COALESCE($3, is_completed),
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+todoColumns, id, patch.Title, patch.IsCompleted,
	).Scan(&updated.ID, &updated.DayID, &updated.Title, &updated.IsCompleted,
		&updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		return Todo{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteTodo(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete todo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete todo rows: %w", err)
	}
	return affected > 0, nil
}

// ---- emails ----

const emailColumns = `id, day_id, subject, sender, recipient, content, received_at, is_read, is_archived, created_at, updated_at`

func (s *PostgresStore) ListEmails(ctx context.Context, dayID string) ([]Email, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE day_id=$1 ORDER BY received_at DESC NULLS LAST, created_at DESC`, dayID)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	items := make([]Email, 0)
	for rows.Next() {
		var email Email
		if err := rows.Scan(&email.ID, &email.DayID, &email.Subject, &email.Sender,
			&email.Recipient, &email.Content, &email.ReceivedAt, &email.IsRead,
			&email.IsArchived, &email.CreatedAt, &email.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		items = append(items, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emails: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertEmail(ctx context.Context, email Email) (Email, error) {
	var inserted Email
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO emails (id, day_id, subject, sender, recipient, content, received_at, is_read, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+emailColumns,
		email.ID, email.DayID, email.Subject, email.Sender, email.Recipient,
		email.Content, email.ReceivedAt, email.IsRead, email.IsArchived,
	).Scan(&inserted.ID, &inserted.DayID, &inserted.Subject, &inserted.Sender,
		&inserted.Recipient, &inserted.Content, &inserted.ReceivedAt, &inserted.IsRead,
		&inserted.IsArchived, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		return Email{}, fmt.Errorf("insert email: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateEmail(ctx context.Context, id string, patch EmailPatch) (Email, error) {
	var updated Email
	err := s.db.QueryRowContext(ctx, `
		UPDATE emails
		SET subject=COALESCE($2, subject),
			sender=COALESCE($3, sender),
			recipient=COALESCE($4, recipient),
			content=COALESCE($5, content),
			is_read=COALESCE($6, is_read),
			is_archived=COALESCE($7, is_archived),
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+emailColumns,
		id, patch.Subject, patch.Sender, patch.Recipient, patch.Content, patch.IsRead, patch.IsArchived,
	).Scan(&updated.ID, &updated.DayID, &updated.Subject, &updated.Sender,
		&updated.Recipient, &updated.Content, &updated.ReceivedAt, &updated.IsRead,
		&updated.IsArchived, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		return Email{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteEmail(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete email rows: %w", err)
	}
	return affected > 0, nil
}
