// Package usage provides the persistent daily token ledger that tiers
// requests between the premium and mini models. Counters are keyed by
// UTC calendar day and tier; a new day key is created lazily on first
// write, which is how the daily "reset" happens.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Tier identifies which model class a request is billed against.
type Tier string

const (
	TierPremium Tier = "premium"
	TierMini    Tier = "mini"
)

// Action is the policy applied once both tiers are over budget.
type Action string

const (
	ActionDeny    Action = "deny"
	ActionWarn    Action = "warn"
	ActionProceed Action = "proceed"
)

// ParseAction normalizes a config string to an Action. Unknown values
// fall back to proceed.
func ParseAction(s string) Action {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionDeny:
		return ActionDeny
	case ActionWarn:
		return ActionWarn
	default:
		return ActionProceed
	}
}

// ErrDailyLimit is returned by PickModel when both tiers are exhausted
// and the limit action is deny. The caller must abort before any
// backend call is made.
var ErrDailyLimit = errors.New("daily usage limit reached")

// Limits holds the per-tier daily token budgets. 0 means unlimited.
type Limits struct {
	Premium int64
	Mini    int64
}

// Usage is one day's consumption per tier.
type Usage struct {
	Premium int64 `json:"premium"`
	Mini    int64 `json:"mini"`
}

// Ledger tracks per-day token consumption and decides the tier for the
// next request. All methods are safe for concurrent use: counter bumps
// are single upsert statements, so the read-modify-write never spans a
// suspension point.
//
// A disabled ledger (storage unavailable at startup) always picks the
// premium tier and drops records instead of failing requests.
type Ledger struct {
	db         *sql.DB
	autoSwitch bool
	limits     Limits
	action     Action
	logger     *slog.Logger

	now func() time.Time // test override
}

// NewLedger opens (creating if needed) the ledger database.
func NewLedger(dbPath string, autoSwitch bool, limits Limits, action Action, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}

	l := &Ledger{
		db:         db,
		autoSwitch: autoSwitch,
		limits:     limits,
		action:     action,
		logger:     logger,
		now:        time.Now,
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return l, nil
}

// Disabled returns a ledger in degraded mode: PickModel always returns
// the premium default and Record is a no-op. Used when the backing
// store failed to open at startup.
func Disabled(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{logger: logger, now: time.Now}
}

// Enabled reports whether the ledger has a backing store.
func (l *Ledger) Enabled() bool {
	return l.db != nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_usage (
			usage_date     TEXT PRIMARY KEY,
			premium_tokens INTEGER NOT NULL DEFAULT 0,
			mini_tokens    INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// dayKey returns the UTC calendar-day key for t.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// PickModel decides which tier the next request should use. With
// auto-switch disabled it always returns the premium default. Otherwise
// premium is used while under its daily limit, then mini, and once both
// are exhausted the configured limit action applies: deny returns
// ErrDailyLimit (no backend call may be made), warn and proceed both
// select mini anyway.
func (l *Ledger) PickModel(ctx context.Context) (Tier, error) {
	if !l.autoSwitch || l.db == nil {
		return TierPremium, nil
	}

	today, err := l.Today(ctx)
	if err != nil {
		// A read failure must not take the chat down. Fall back to
		// the premium default.
		l.logger.Error("usage read failed, defaulting to premium", "error", err)
		return TierPremium, nil
	}

	if l.limits.Premium == 0 || today.Premium < l.limits.Premium {
		return TierPremium, nil
	}
	if l.limits.Mini == 0 || today.Mini < l.limits.Mini {
		return TierMini, nil
	}

	switch l.action {
	case ActionDeny:
		return "", ErrDailyLimit
	case ActionWarn:
		l.logger.Warn("daily usage limits exhausted, proceeding on mini tier",
			"premium_tokens", today.Premium,
			"mini_tokens", today.Mini,
		)
		return TierMini, nil
	default:
		return TierMini, nil
	}
}

// Record adds tokens to today's counter for the tier actually used.
// The increment is one upsert statement keyed by the current UTC date.
func (l *Ledger) Record(ctx context.Context, tier Tier, tokens int) error {
	if l.db == nil || tokens <= 0 {
		return nil
	}

	column := "premium_tokens"
	if tier == TierMini {
		column = "mini_tokens"
	}

	// column is one of two compile-time constants, never user input.
	query := fmt.Sprintf(`
		INSERT INTO daily_usage (usage_date, %s) VALUES (?, ?)
		ON CONFLICT(usage_date) DO UPDATE SET %s = %s + excluded.%s
	`, column, column, column, column)

	if _, err := l.db.ExecContext(ctx, query, dayKey(l.now()), tokens); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Today returns the current UTC day's consumption per tier. Days with
// no writes yet read as zero.
func (l *Ledger) Today(ctx context.Context) (Usage, error) {
	if l.db == nil {
		return Usage{}, nil
	}

	var u Usage
	err := l.db.QueryRowContext(ctx,
		`SELECT premium_tokens, mini_tokens FROM daily_usage WHERE usage_date = ?`,
		dayKey(l.now()),
	).Scan(&u.Premium, &u.Mini)
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("query today's usage: %w", err)
	}
	return u, nil
}
