package store

import (
	"strings"
	"time"
)

// TransientIDPrefix marks day records fabricated while the database is
// unreachable. They are never written to storage.
const TransientIDPrefix = "dev_"

// IsTransientID reports whether id belongs to a non-persistent record.
func IsTransientID(id string) bool {
	return strings.HasPrefix(id, TransientIDPrefix)
}

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Day is one calendar day of a user's dashboard. (UserID, Date) is unique;
// Date is ISO 8601 YYYY-MM-DD.
type Day struct {
	ID        string
	UserID    string
	Date      string
	DailyNote string
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Todo struct {
	ID          string
	DayID       string
	Title       string
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Email struct {
	ID         string
	DayID      string
	Subject    string
	Sender     string
	Recipient  string
	Content    string
	ReceivedAt *time.Time
	IsRead     bool
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DayPatch carries a partial update; nil fields are left unchanged.
type DayPatch struct {
	DailyNote *string
	Summary   *string
}

type TodoPatch struct {
	Title       *string
	IsCompleted *bool
}

type EmailPatch struct {
	Subject    *string
	Sender     *string
	Recipient  *string
	Content    *string
	IsRead     *bool
	IsArchived *bool
}
