// Package bot bridges the Telegram transport and the message
// dispatcher: it polls for updates, fans them out to per-chat workers,
// and sends replies back.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tmadden/marvin/internal/ratelimit"
	"github.com/tmadden/marvin/internal/telegram"
)

// Replies produced by the bridge itself, without dispatcher involvement.
const (
	// BusyReply is sent when the global rate limiter rejects a message.
	BusyReply = "I'm handling a lot of messages right now. Please try again in a minute."

	// ErrorReply is the catch-all for failures nothing else translated
	// into a friendlier message.
	ErrorReply = "Something went wrong on my end. Please try again."
)

const (
	// handleTimeout bounds one message's processing, tool rounds and
	// retries included.
	handleTimeout = 5 * time.Minute

	// typingInterval is the heartbeat cadence for the chat action;
	// Telegram expires a typing indicator after roughly five seconds.
	typingInterval = 4 * time.Second

	// pollRetryDelay is the pause after a failed getUpdates call.
	pollRetryDelay = 3 * time.Second

	// workerQueueSize bounds each chat's pending-message backlog.
	workerQueueSize = 16
)

// Transport is the Telegram client surface the bridge needs. The real
// implementation is *telegram.Client.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, mode telegram.ParseMode) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Handler produces the reply for one inbound message. The real
// implementation is *agent.Dispatcher.
type Handler interface {
	Handle(ctx context.Context, userID, chatID int64, text string) string
}

// Bridge routes inbound messages through the handler, one worker per
// chat so replies within a chat never reorder.
type Bridge struct {
	logger      *slog.Logger
	transport   Transport
	handler     Handler
	limiter     *ratelimit.Limiter
	pollTimeout int

	mu      sync.Mutex
	workers map[int64]chan *telegram.IncomingMessage
	wg      sync.WaitGroup
}

func NewBridge(logger *slog.Logger, transport Transport, handler Handler, limiter *ratelimit.Limiter, pollTimeoutSec int) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:      logger,
		transport:   transport,
		handler:     handler,
		limiter:     limiter,
		pollTimeout: pollTimeoutSec,
		workers:     make(map[int64]chan *telegram.IncomingMessage),
	}
}

// Run polls for updates until ctx is cancelled, then waits for the
// in-flight workers to drain.
func (b *Bridge) Run(ctx context.Context) {
	b.logger.Info("bridge started", "poll_timeout_sec", b.pollTimeout)

	var offset int64
	for ctx.Err() == nil {
		updates, err := b.transport.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Error("getUpdates failed", "error", err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
			}
			continue
		}

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			m := u.Message
			if m == nil || m.From == nil || m.Text == "" {
				continue
			}
			b.enqueue(ctx, m)
		}
	}

	b.logger.Info("bridge shutting down")
	b.mu.Lock()
	for _, queue := range b.workers {
		close(queue)
	}
	b.workers = make(map[int64]chan *telegram.IncomingMessage)
	b.mu.Unlock()
	b.wg.Wait()
}

// enqueue hands the message to its chat's worker, creating the worker
// on first contact. A full queue drops the message so a stuck chat
// cannot stall polling.
func (b *Bridge) enqueue(ctx context.Context, m *telegram.IncomingMessage) {
	chatID := m.Chat.ID

	b.mu.Lock()
	queue, ok := b.workers[chatID]
	if !ok {
		queue = make(chan *telegram.IncomingMessage, workerQueueSize)
		b.workers[chatID] = queue
		b.wg.Add(1)
		go b.worker(ctx, queue)
	}
	b.mu.Unlock()

	select {
	case queue <- m:
	default:
		b.logger.Warn("chat backlog full, dropping message", "chat_id", chatID)
	}
}

func (b *Bridge) worker(ctx context.Context, queue <-chan *telegram.IncomingMessage) {
	defer b.wg.Done()
	for m := range queue {
		b.handleMessage(ctx, m)
	}
}

// handleMessage processes one inbound message end to end.
func (b *Bridge) handleMessage(ctx context.Context, m *telegram.IncomingMessage) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	chatID := m.Chat.ID
	log := b.logger.With("chat_id", chatID, "user_id", m.From.ID)
	log.Info("message received", "len", len(m.Text))

	if !b.limiter.Admit() {
		log.Warn("message rate-limited")
		b.reply(ctx, log, chatID, BusyReply, telegram.ModePlain)
		return
	}

	stopTyping := b.startTyping(ctx, chatID)
	defer stopTyping()

	reply := b.safeHandle(ctx, log, m)

	// Stop the heartbeat before the reply goes out so the chat never
	// shows typing alongside the answer.
	stopTyping()

	if reply == "" {
		reply = ErrorReply
	}
	b.reply(ctx, log, chatID, reply, telegram.ModeMarkdown)
}

// safeHandle invokes the dispatcher and converts a panic into the
// catch-all reply rather than taking the worker down.
func (b *Bridge) safeHandle(ctx context.Context, log *slog.Logger, m *telegram.IncomingMessage) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("message handler panicked", "panic", r)
			reply = ErrorReply
		}
	}()
	return b.handler.Handle(ctx, m.From.ID, m.Chat.ID, m.Text)
}

// startTyping launches the typing heartbeat and returns an idempotent
// stop function that waits for the goroutine to exit.
func (b *Bridge) startTyping(ctx context.Context, chatID int64) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			// Heartbeat failures are cosmetic; the message is still
			// being processed.
			if err := b.transport.SendTyping(hbCtx, chatID); err != nil && hbCtx.Err() == nil {
				b.logger.Debug("typing indicator failed", "chat_id", chatID, "error", err)
			}
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (b *Bridge) reply(ctx context.Context, log *slog.Logger, chatID int64, text string, mode telegram.ParseMode) {
	// The handler context may already be done; the send still gets a
	// short window of its own.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := b.transport.SendMessage(ctx, chatID, text, mode); err != nil {
		log.Error("reply send failed", "error", err)
		return
	}
	log.Info("reply sent", "len", len(text))
}
