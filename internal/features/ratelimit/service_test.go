package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordercheck-bot-backend/internal/features/checklog"
	"ordercheck-bot-backend/internal/features/user/models"
)

type fakeUsers struct {
	setCalls   int
	setStrike  int
	setUntil   time.Time
	clearCalls int
	setErr     error
}

func (f *fakeUsers) GetByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	return nil, nil
}

func (f *fakeUsers) ListTelegramIDs(ctx context.Context) ([]int64, error) { return nil, nil }

func (f *fakeUsers) SetPunishment(ctx context.Context, id int64, strike int, until time.Time) error {
	f.setCalls++
	f.setStrike = strike
	f.setUntil = until
	return f.setErr
}

func (f *fakeUsers) ClearPunishment(ctx context.Context, id int64) error {
	f.clearCalls++
	return nil
}

func (f *fakeUsers) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	return 0, nil
}

type fakeLogs struct {
	spam []checklog.SpamEntry
}

func (f *fakeLogs) AppendChecks(ctx context.Context, entries []checklog.CheckEntry) error { return nil }
func (f *fakeLogs) AppendSpam(ctx context.Context, entry checklog.SpamEntry) error {
	f.spam = append(f.spam, entry)
	return nil
}
func (f *fakeLogs) AppendQR(ctx context.Context, entry checklog.QREntry) error { return nil }
func (f *fakeLogs) CountChecksToday(ctx context.Context, id int64, day time.Time) (int, error) {
	return 0, nil
}

func testLadder() Ladder {
	return Ladder{Band1: time.Hour, Band2: 24 * time.Hour, Band3: 7 * 24 * time.Hour}
}

func newTestService(limit int) (*Service, *fakeUsers, *fakeLogs) {
	users := &fakeUsers{}
	logs := &fakeLogs{}
	svc := NewService(users, logs, limit, testLadder())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	return svc, users, logs
}

func TestAllowUnderLimit(t *testing.T) {
	svc, users, _ := newTestService(3)
	u := &models.User{TelegramID: 1}

	for i := 0; i < 3; i++ {
		breach, ok := svc.Allow(context.Background(), u)
		require.True(t, ok)
		require.Nil(t, breach)
	}
	assert.Equal(t, 0, users.setCalls)
}

func TestBreachIssuesFirstStrike(t *testing.T) {
	svc, users, logs := newTestService(3)
	u := &models.User{TelegramID: 1, Username: "u1"}

	for i := 0; i < 3; i++ {
		_, ok := svc.Allow(context.Background(), u)
		require.True(t, ok)
	}

	breach, ok := svc.Allow(context.Background(), u)
	require.False(t, ok)
	require.NotNil(t, breach)

	assert.Equal(t, 1, breach.Strike)
	assert.Equal(t, 4, breach.CountMinute)
	assert.Equal(t, svc.now().Add(time.Hour), breach.Until)

	assert.Equal(t, 1, users.setCalls)
	assert.Equal(t, 1, users.setStrike)

	require.Len(t, logs.spam, 1)
	assert.Equal(t, "1h", logs.spam[0].Band)
}

func TestLadderEscalation(t *testing.T) {
	cases := []struct {
		priorStrikes int
		wantStrike   int
		wantDur      time.Duration
		wantBand     string
	}{
		{0, 1, time.Hour, "1h"},
		{1, 2, 24 * time.Hour, "1d"},
		{2, 3, 7 * 24 * time.Hour, "7d"},
		{5, 6, 7 * 24 * time.Hour, "7d"},
	}

	for _, tc := range cases {
		svc, _, logs := newTestService(0)
		u := &models.User{TelegramID: 1, StrikeCount: tc.priorStrikes}

		breach, ok := svc.Allow(context.Background(), u)
		require.False(t, ok)
		assert.Equal(t, tc.wantStrike, breach.Strike)
		assert.Equal(t, svc.now().Add(tc.wantDur), breach.Until)
		require.Len(t, logs.spam, 1)
		assert.Equal(t, tc.wantBand, logs.spam[0].Band)
	}
}

func TestCheckLockoutActive(t *testing.T) {
	svc, users, _ := newTestService(10)
	until := svc.now().Add(30 * time.Minute)
	u := &models.User{TelegramID: 1, StrikeCount: 2, LockoutUntil: &until}

	locked, got := svc.CheckLockout(context.Background(), u)
	require.True(t, locked)
	assert.Equal(t, until, got)
	assert.Equal(t, 0, users.clearCalls)
	assert.Equal(t, 0, users.setCalls)
	assert.Equal(t, 2, u.StrikeCount)

	// A refused request counts nothing: the window map stays empty.
	svc.mu.Lock()
	assert.Empty(t, svc.windows)
	svc.mu.Unlock()
}

// Serving out a lockout clears the strike counter too, so the next breach
// starts the ladder over at strike one.
func TestExpiredLockoutAmnesty(t *testing.T) {
	svc, users, _ := newTestService(0)
	until := svc.now().Add(-time.Minute)
	u := &models.User{TelegramID: 1, StrikeCount: 3, LockoutUntil: &until}

	locked, _ := svc.CheckLockout(context.Background(), u)
	require.False(t, locked)
	assert.Equal(t, 1, users.clearCalls)
	assert.Equal(t, 0, u.StrikeCount)
	assert.Nil(t, u.LockoutUntil)

	breach, ok := svc.Allow(context.Background(), u)
	require.False(t, ok)
	assert.Equal(t, 1, breach.Strike)
	assert.Equal(t, svc.now().Add(time.Hour), breach.Until)
}

func TestStrikeSurvivesPersistFailure(t *testing.T) {
	svc, users, _ := newTestService(0)
	users.setErr = context.DeadlineExceeded
	u := &models.User{TelegramID: 1}

	breach, ok := svc.Allow(context.Background(), u)
	require.False(t, ok)
	assert.Equal(t, 1, breach.Strike)
	// The in-memory user is not updated when the write failed.
	assert.Equal(t, 0, u.StrikeCount)
}

func TestPruneDropsOldWindows(t *testing.T) {
	svc, _, _ := newTestService(10)
	u := &models.User{TelegramID: 1}

	_, ok := svc.Allow(context.Background(), u)
	require.True(t, ok)

	base := svc.now()
	svc.now = func() time.Time { return base.Add(10 * time.Minute) }
	svc.prune()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.windows)
}
