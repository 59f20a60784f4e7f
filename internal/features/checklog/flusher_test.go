package checklog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu      sync.Mutex
	checks  []CheckEntry
	dbCount int
}

func (m *memoryRepo) AppendChecks(ctx context.Context, entries []CheckEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, entries...)
	return nil
}

func (m *memoryRepo) AppendSpam(ctx context.Context, entry SpamEntry) error { return nil }
func (m *memoryRepo) AppendQR(ctx context.Context, entry QREntry) error     { return nil }

func (m *memoryRepo) CountChecksToday(ctx context.Context, id int64, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dbCount, nil
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", MaskValue(""))
	assert.Equal(t, "short", MaskValue("short"))

	exact := "123456789012345678" // 18 chars, the boundary
	assert.Equal(t, exact, MaskValue(exact))

	long := "1234567890ABCDEFGHIJKLMNOP"
	assert.Equal(t, "1234567890...KLMNOP", MaskValue(long))
}

func TestFlusherBuffersUntilBatchSize(t *testing.T) {
	repo := &memoryRepo{}
	f := NewFlusher(repo, 3, time.Hour)

	now := time.Now()
	f.Add(CheckEntry{Time: now, TelegramID: 7})
	f.Add(CheckEntry{Time: now, TelegramID: 7})
	assert.Empty(t, repo.checks)

	f.Add(CheckEntry{Time: now, TelegramID: 7})
	f.Stop()
	assert.Len(t, repo.checks, 3)
}

type blockingRepo struct {
	memoryRepo
	release chan struct{}
}

func (b *blockingRepo) AppendChecks(ctx context.Context, entries []CheckEntry) error {
	<-b.release
	return b.memoryRepo.AppendChecks(ctx, entries)
}

// Filling a batch must not stall the caller on the database insert.
func TestFullBatchFlushDoesNotBlockAdd(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	f := NewFlusher(repo, 2, time.Hour)

	done := make(chan struct{})
	go func() {
		f.Add(CheckEntry{Time: time.Now(), TelegramID: 1})
		f.Add(CheckEntry{Time: time.Now(), TelegramID: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Add blocked on the batch insert")
	}

	close(repo.release)
	f.Stop()
	assert.Len(t, repo.checks, 2)
}

// Buffered rows must count toward today's quota before they hit the database,
// otherwise a fast user gets free extra checks inside one batch window.
func TestCountTodayIncludesPending(t *testing.T) {
	repo := &memoryRepo{dbCount: 4}
	f := NewFlusher(repo, 100, time.Hour)

	now := time.Now()
	f.Add(CheckEntry{Time: now, TelegramID: 7})
	f.Add(CheckEntry{Time: now, TelegramID: 7})
	f.Add(CheckEntry{Time: now, TelegramID: 9}) // someone else
	f.Add(CheckEntry{Time: now.Add(-48 * time.Hour), TelegramID: 7})

	count, err := f.CountToday(context.Background(), 7, now)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestStopFlushesRemainder(t *testing.T) {
	repo := &memoryRepo{}
	f := NewFlusher(repo, 100, time.Hour)
	f.Start()

	f.Add(CheckEntry{Time: time.Now(), TelegramID: 1})
	f.Stop()

	assert.Len(t, repo.checks, 1)
}
