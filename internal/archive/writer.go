// Package archive copies live chat messages into the durable log. Writes are
// asynchronous and best effort: a full queue drops the message and a failed
// write is retried a few times, but neither ever reaches the sender.
package archive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/logging"
	"github.com/Tyrowin/tourneychat/internal/store"
	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

// Options sizes a Writer. Zero values fall back to defaults.
type Options struct {
	QueueSize   int
	Workers     int
	Attempts    int
	BaseBackoff time.Duration
	Logger      *zap.Logger
}

// Writer is a chat.MessageSink that persists messages on worker goroutines.
type Writer struct {
	log         store.Log
	queue       chan chat.LiveMessage
	workers     int
	attempts    int
	baseBackoff time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

var _ chat.MessageSink = (*Writer)(nil)

func NewWriter(log store.Log, opts Options) *Writer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	return &Writer{
		log:         log,
		queue:       make(chan chat.LiveMessage, opts.QueueSize),
		workers:     opts.Workers,
		attempts:    opts.Attempts,
		baseBackoff: opts.BaseBackoff,
		logger:      opts.Logger.Named("archive"),
	}
}

// Start launches the workers. Cancelling ctx aborts in-flight retries.
func (w *Writer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Publish enqueues msg without blocking.
func (w *Writer) Publish(msg chat.LiveMessage) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- msg:
	default:
		telemetry.IncArchiveDropped()
		w.logger.Warn("archive queue full, dropping message",
			zap.String("tournament_id", msg.TournamentID),
			zap.String("message_id", msg.ID))
	}
}

// Close stops accepting messages and waits for the queue to drain. If ctx
// expires first, outstanding writes are abandoned.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if w.cancel != nil {
			w.cancel()
		}
		return nil
	case <-ctx.Done():
		if w.cancel != nil {
			w.cancel()
		}
		return ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	for msg := range w.queue {
		w.write(ctx, msg)
	}
}

func (w *Writer) write(ctx context.Context, msg chat.LiveMessage) {
	record := store.PersistedMessage{
		MessageID:    msg.ID,
		TournamentID: msg.TournamentID,
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		Text:         msg.Text,
		CreatedAt:    msg.CreatedAt,
	}

	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err = w.log.Append(ctx, record); err == nil {
			telemetry.IncArchiveWritten()
			return
		}
		if attempt == w.attempts {
			break
		}
		w.logger.Warn("archive write failed, retrying",
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if sleepErr := sleepWithContext(ctx, w.backoff(attempt)); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	telemetry.IncArchiveFailed()
	w.logger.Error("archive write abandoned",
		zap.String("tournament_id", msg.TournamentID),
		zap.String("message_id", msg.ID),
		zap.Error(err))
}

func (w *Writer) backoff(attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * w.baseBackoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
