package checklog

import (
	"context"
	"sync"
	"time"

	"ordercheck-bot-backend/internal/common/logger"
)

// Flusher buffers check-log rows in memory and writes them out in batches so
// one slow insert never sits on the webhook path. Spam and QR rows are rare
// and bypass the buffer.
type Flusher struct {
	repo      Repository
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	pending []CheckEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFlusher(repo Repository, batchSize int, interval time.Duration) *Flusher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Flusher{
		repo:      repo,
		batchSize: batchSize,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add queues one check row. The row is visible to CountToday immediately,
// before it reaches the database. A full batch is written out on a separate
// goroutine so the caller never waits on the insert.
func (f *Flusher) Add(entry CheckEntry) {
	f.mu.Lock()
	f.pending = append(f.pending, entry)
	full := len(f.pending) >= f.batchSize
	f.mu.Unlock()

	if full {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.flush()
		}()
	}
}

// CountToday counts a user's checks for today across the database and the
// not-yet-flushed buffer.
func (f *Flusher) CountToday(ctx context.Context, telegramID int64, now time.Time) (int, error) {
	count, err := f.repo.CountChecksToday(ctx, telegramID, now)
	if err != nil {
		return 0, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	f.mu.Lock()
	for _, e := range f.pending {
		if e.TelegramID == telegramID && !e.Time.Before(dayStart) {
			count++
		}
	}
	f.mu.Unlock()
	return count, nil
}

func (f *Flusher) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				f.flush()
			case <-f.ctx.Done():
				return
			}
		}
	}()
}

// Stop flushes whatever is left and waits for the worker.
func (f *Flusher) Stop() {
	f.cancel()
	f.wg.Wait()
	f.flush()
}

func (f *Flusher) flush() {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := f.repo.AppendChecks(ctx, batch); err != nil {
		// Log rows are best effort; losing them must not affect users.
		logger.Warn().Int("rows", len(batch)).Err(err).Msg("check log flush failed")
	}
}
