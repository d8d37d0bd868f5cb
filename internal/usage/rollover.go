package usage

import (
	"context"
	"time"
)

// retentionDays is how long superseded day rows are kept before the
// rollover task prunes them.
const retentionDays = 90

// StartRollover launches the day-boundary housekeeping task on its own
// goroutine, distinct from the per-message request path. Day keying
// itself is lazy (a fresh date key appears on the first write after
// midnight); this task only logs the boundary and prunes old rows.
func (l *Ledger) StartRollover(ctx context.Context) {
	if l.db == nil {
		return
	}

	go func() {
		for {
			now := l.now().UTC()
			next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			l.logger.Info("usage day rollover", "usage_date", dayKey(l.now()))
			if err := l.prune(ctx); err != nil {
				l.logger.Error("usage prune failed", "error", err)
			}
		}
	}()
}

// prune deletes day rows older than the retention horizon.
func (l *Ledger) prune(ctx context.Context) error {
	cutoff := dayKey(l.now().AddDate(0, 0, -retentionDays))
	_, err := l.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE usage_date < ?`, cutoff)
	return err
}
