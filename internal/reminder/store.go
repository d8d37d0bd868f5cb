// Package reminder implements the durable reminder store and the
// background poller that delivers due reminders.
package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status is a reminder's lifecycle state. pending is the only
// poll-eligible state; the rest are terminal and never revisited.
type Status string

const (
	StatusPending          Status = "pending"
	StatusSent             Status = "sent"
	StatusFailedForbidden  Status = "failed_forbidden"
	StatusFailedBadRequest Status = "failed_bad_request"
	StatusFailedUnknown    Status = "failed_unknown"
)

// DueTimeLayout is the only accepted due-time format: second
// precision, UTC, 'Z' suffix.
const DueTimeLayout = "2006-01-02T15:04:05Z"

// Sentinel errors callers branch on.
var (
	// ErrInvalidDueTime means the due time did not match
	// YYYY-MM-DDTHH:MM:SSZ exactly.
	ErrInvalidDueTime = errors.New("due time must be YYYY-MM-DDTHH:MM:SSZ (UTC)")

	// ErrNotFound means the reminder does not exist or belongs to
	// another user. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("reminder not found")

	// ErrUnavailable means the backing store failed to initialize and
	// the whole feature is disabled.
	ErrUnavailable = errors.New("reminder storage is unavailable")
)

// QuotaError reports a user at their pending-reminder cap.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("pending reminder limit reached (%d)", e.Limit)
}

// Reminder is one stored reminder row.
type Reminder struct {
	ID        int64
	UserID    int64
	ChatID    int64
	Text      string
	DueTime   string // DueTimeLayout
	CreatedAt string // DueTimeLayout
	Status    Status
}

// Store is the sqlite-backed reminder store. A Store constructed via
// Unavailable rejects every operation with ErrUnavailable instead of
// crashing the host process.
type Store struct {
	db         *sql.DB
	maxPerUser int

	now func() time.Time // test override
}

// NewStore opens (creating if needed) the reminder database.
// maxPerUser caps pending reminders per user; 0 means no cap.
func NewStore(dbPath string, maxPerUser int) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open reminder database: %w", err)
	}

	s := &Store{db: db, maxPerUser: maxPerUser, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate reminder schema: %w", err)
	}
	return s, nil
}

// Unavailable returns a store in degraded mode; every operation
// reports ErrUnavailable without side effects.
func Unavailable() *Store {
	return &Store{now: time.Now}
}

// Enabled reports whether the store has a backing database.
func (s *Store) Enabled() bool {
	return s.db != nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reminders (
		reminder_id       INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id           INTEGER NOT NULL,
		chat_id           INTEGER NOT NULL,
		reminder_text     TEXT NOT NULL,
		due_time_utc      TEXT NOT NULL,
		creation_time_utc TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'pending'
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_user_status ON reminders(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_reminders_due_status ON reminders(due_time_utc, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ValidateDueTime checks the strict wire format. time.Parse alone is
// too lenient about the suffix, so the shape is checked first.
func ValidateDueTime(s string) error {
	if len(s) != len("2006-01-02T15:04:05Z") || s[len(s)-1] != 'Z' {
		return ErrInvalidDueTime
	}
	if _, err := time.Parse(DueTimeLayout, s); err != nil {
		return ErrInvalidDueTime
	}
	return nil
}

// Add inserts a pending reminder and returns its assigned ID. The
// per-user quota is checked against pending rows only, inside the same
// transaction as the insert so concurrent adds cannot slip past the cap.
func (s *Store) Add(ctx context.Context, userID, chatID int64, text, dueTime string) (int64, error) {
	if s.db == nil {
		return 0, ErrUnavailable
	}
	if err := ValidateDueTime(dueTime); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add reminder: %w", err)
	}
	defer tx.Rollback()

	if s.maxPerUser > 0 {
		var pending int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reminders WHERE user_id = ? AND status = ?`,
			userID, StatusPending,
		).Scan(&pending)
		if err != nil {
			return 0, fmt.Errorf("count pending reminders: %w", err)
		}
		if pending >= s.maxPerUser {
			return 0, &QuotaError{Limit: s.maxPerUser}
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO reminders (user_id, chat_id, reminder_text, due_time_utc, creation_time_utc, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, chatID, text, dueTime, s.now().UTC().Format(DueTimeLayout), StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reminder insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add reminder: %w", err)
	}
	return id, nil
}

// View returns the user's pending reminders in insertion order.
func (s *Store) View(ctx context.Context, userID int64) ([]Reminder, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT reminder_id, user_id, chat_id, reminder_text, due_time_utc, creation_time_utc, status
		 FROM reminders WHERE user_id = ? AND status = ?
		 ORDER BY reminder_id`,
		userID, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// Delete removes a reminder the user owns. Deleting a nonexistent or
// foreign reminder reports ErrNotFound with no state change.
func (s *Store) Delete(ctx context.Context, userID, id int64) error {
	if s.db == nil {
		return ErrUnavailable
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE reminder_id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reminder rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Edit updates the due time and/or text of a pending reminder the user
// owns. Nil fields retain their prior values. Reminders that have
// already left pending report ErrNotFound.
func (s *Store) Edit(ctx context.Context, userID, id int64, newDueTime, newText *string) error {
	if s.db == nil {
		return ErrUnavailable
	}
	if newDueTime == nil && newText == nil {
		return nil
	}
	if newDueTime != nil {
		if err := ValidateDueTime(*newDueTime); err != nil {
			return err
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders
		 SET due_time_utc = COALESCE(?, due_time_utc),
		     reminder_text = COALESCE(?, reminder_text)
		 WHERE reminder_id = ? AND user_id = ? AND status = ?`,
		newDueTime, newText, id, userID, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("edit reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("edit reminder rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Due returns every pending reminder whose due time is at or before
// now, across all users.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT reminder_id, user_id, chat_id, reminder_text, due_time_utc, creation_time_utc, status
		 FROM reminders WHERE status = ? AND due_time_utc <= ?
		 ORDER BY due_time_utc, reminder_id`,
		StatusPending, now.UTC().Format(DueTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// SetStatus moves a reminder out of pending. It is a single idempotent
// row update; only pending rows transition, so a repeated call after a
// mid-cycle interruption cannot overwrite a terminal status.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	if s.db == nil {
		return ErrUnavailable
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ? WHERE reminder_id = ? AND status = ?`,
		status, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("set reminder status: %w", err)
	}
	return nil
}

// Get returns one reminder regardless of status, for tests and the
// ops API.
func (s *Store) Get(ctx context.Context, id int64) (*Reminder, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}

	var r Reminder
	err := s.db.QueryRowContext(ctx,
		`SELECT reminder_id, user_id, chat_id, reminder_text, due_time_utc, creation_time_utc, status
		 FROM reminders WHERE reminder_id = ?`,
		id,
	).Scan(&r.ID, &r.UserID, &r.ChatID, &r.Text, &r.DueTime, &r.CreatedAt, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.ChatID, &r.Text, &r.DueTime, &r.CreatedAt, &r.Status); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
