package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tmadden/marvin/internal/telegram"
)

// deliverTimeout bounds one reminder's delivery attempt.
const deliverTimeout = 30 * time.Second

// minPollInterval is the floor for the poll cadence; anything lower
// (including an explicit zero, which time.NewTicker rejects) is
// clamped up to it.
const minPollInterval = time.Second

// Sender delivers reminder text to a chat. *telegram.Client satisfies
// it via a thin adapter in the wiring; tests substitute fakes.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Poller finds due reminders and delivers them. Every delivery attempt
// moves the reminder out of pending exactly once: sent on success, or
// one of the failed_* statuses by failure class. Terminal reminders
// are never retried. A fetch error unrelated to any single reminder
// does not touch statuses; the whole fetch is retried next cycle.
type Poller struct {
	store    *Store
	sender   Sender
	interval time.Duration
	logger   *slog.Logger

	now func() time.Time // test override
}

// NewPoller creates a reminder poller.
func NewPoller(store *Store, sender Sender, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}
	return &Poller{
		store:    store,
		sender:   sender,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled. It refuses to start when the store
// is unavailable; the caller gates the whole feature on that.
func (p *Poller) Run(ctx context.Context) {
	if !p.store.Enabled() {
		p.logger.Warn("reminder poller not starting, store unavailable")
		return
	}

	p.logger.Info("reminder poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reminder poller stopped")
			return
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle runs one poll iteration: fetch due reminders and deliver each.
// Exported so tests can drive cycles without the ticker.
func (p *Poller) Cycle(ctx context.Context) {
	due, err := p.store.Due(ctx, p.now())
	if err != nil {
		// Transient fetch trouble delays everything to the next
		// cycle; no reminder is marked failed for it.
		p.logger.Error("due reminder fetch failed", "error", err)
		return
	}

	for _, r := range due {
		p.deliver(ctx, r)
	}
}

// deliver attempts one reminder and applies the terminal status. The
// transport pre-splits oversized text, so sent is only recorded once
// every part was delivered.
func (p *Poller) deliver(ctx context.Context, r Reminder) {
	sendCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	err := p.sender.SendMessage(sendCtx, r.ChatID, "Reminder: "+r.Text)
	cancel()

	status := StatusSent
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrForbidden):
		status = StatusFailedForbidden
	case errors.Is(err, telegram.ErrBadRequest):
		status = StatusFailedBadRequest
	default:
		status = StatusFailedUnknown
	}

	if err != nil {
		p.logger.Warn("reminder delivery failed",
			"reminder_id", r.ID,
			"chat_id", r.ChatID,
			"status", status,
			"error", err,
		)
	} else {
		p.logger.Info("reminder delivered",
			"reminder_id", r.ID,
			"chat_id", r.ChatID,
		)
	}

	if err := p.store.SetStatus(ctx, r.ID, status); err != nil {
		// The status write is idempotent; a failure here leaves the
		// row pending and the next cycle repeats the attempt.
		p.logger.Error("reminder status update failed",
			"reminder_id", r.ID,
			"status", status,
			"error", err,
		)
	}
}
