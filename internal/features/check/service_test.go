package check

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordercheck-bot-backend/internal/features/checklog"
	"ordercheck-bot-backend/internal/features/ratelimit"
	"ordercheck-bot-backend/internal/features/user/models"
	"ordercheck-bot-backend/internal/platform/ghn"
	"ordercheck-bot-backend/internal/platform/shopee"
	"ordercheck-bot-backend/internal/platform/spx"
)

type fakeUsers struct {
	balances map[int64]int64
	adjusts  []int64
}

func (f *fakeUsers) GetByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	return nil, nil
}
func (f *fakeUsers) ListTelegramIDs(ctx context.Context) ([]int64, error) { return nil, nil }
func (f *fakeUsers) ClearPunishment(ctx context.Context, id int64) error  { return nil }
func (f *fakeUsers) SetPunishment(ctx context.Context, id int64, strike int, until time.Time) error {
	return nil
}
func (f *fakeUsers) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	f.adjusts = append(f.adjusts, delta)
	f.balances[id] += delta
	return f.balances[id], nil
}

type fakeLogRepo struct {
	checks  []checklog.CheckEntry
	dbCount int
}

func (f *fakeLogRepo) AppendChecks(ctx context.Context, entries []checklog.CheckEntry) error {
	f.checks = append(f.checks, entries...)
	return nil
}
func (f *fakeLogRepo) AppendSpam(ctx context.Context, entry checklog.SpamEntry) error { return nil }
func (f *fakeLogRepo) AppendQR(ctx context.Context, entry checklog.QREntry) error     { return nil }
func (f *fakeLogRepo) CountChecksToday(ctx context.Context, id int64, day time.Time) (int, error) {
	return f.dbCount, nil
}

type fakeFetcher struct {
	calls  int
	result *shopee.OrderFetchResult
}

func (f *fakeFetcher) FetchOrders(ctx context.Context, cookie string) (*shopee.OrderFetchResult, error) {
	f.calls++
	return f.result, nil
}

type fakePhones struct {
	calls  int
	locked map[string]bool
}

func (f *fakePhones) CheckPhone(ctx context.Context, phone84, probeCookie string) (bool, error) {
	f.calls++
	return f.locked[phone84], nil
}

type fakeSPX struct {
	calls  int
	result *spx.TrackResult
}

func (f *fakeSPX) Track(ctx context.Context, code string) (*spx.TrackResult, error) {
	f.calls++
	return f.result, nil
}

type fakeGHN struct {
	calls  int
	result *ghn.TrackResult
}

func (f *fakeGHN) Track(ctx context.Context, code string) (*ghn.TrackResult, error) {
	f.calls++
	return f.result, nil
}

type fixture struct {
	svc     *Service
	users   *fakeUsers
	logs    *fakeLogRepo
	fetcher *fakeFetcher
	phones  *fakePhones
	spx     *fakeSPX
	ghn     *fakeGHN
}

func newFixture() *fixture {
	users := &fakeUsers{balances: map[int64]int64{}}
	logs := &fakeLogRepo{}
	fetcher := &fakeFetcher{result: &shopee.OrderFetchResult{Outcome: shopee.OutcomeOK}}
	phones := &fakePhones{locked: map[string]bool{}}
	spxFake := &fakeSPX{result: &spx.TrackResult{Found: true}}
	ghnFake := &fakeGHN{result: &ghn.TrackResult{Found: true}}

	limiter := ratelimit.NewService(users, logs, 20, ratelimit.Ladder{
		Band1: time.Hour, Band2: 24 * time.Hour, Band3: 7 * 24 * time.Hour,
	})

	svc := NewService(
		users,
		checklog.NewFlusher(logs, 100, time.Hour),
		limiter,
		fetcher, phones, spxFake, ghnFake,
		NewCache(nil, 0),
		Prices{OrderCheck: 10, SPXCheck: 5, GHNCheck: 5, PhoneCheck: 5},
		10, 10,
		"SPC_ST=.probe",
	)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, users: users, logs: logs, fetcher: fetcher, phones: phones, spx: spxFake, ghn: ghnFake}
}

// The eleventh free check of the day must be refused before anything goes
// upstream.
func TestQuotaRejectsBeforeUpstream(t *testing.T) {
	fx := newFixture()
	fx.logs.dbCount = 10
	u := &models.User{TelegramID: 1, Balance: 0, Status: "active"}

	reply := fx.svc.Process(context.Background(), u, KindCookie, "SPC_ST=.x")

	assert.True(t, reply.Stop)
	assert.Contains(t, reply.Text, "HẾT LƯỢT MIỄN PHÍ")
	assert.Contains(t, reply.Text, "10/10")
	assert.Equal(t, 0, fx.fetcher.calls)
}

func TestPositiveBalanceSkipsQuota(t *testing.T) {
	fx := newFixture()
	fx.logs.dbCount = 999
	u := &models.User{TelegramID: 1, Balance: 100, Status: "active"}

	reply := fx.svc.Process(context.Background(), u, KindSPX, "SPXVN1")

	assert.False(t, reply.Stop)
	assert.Equal(t, 1, fx.spx.calls)
}

func TestChargeOnSuccess(t *testing.T) {
	fx := newFixture()
	fx.users.balances[1] = 100
	u := &models.User{TelegramID: 1, Balance: 100, Status: "active"}

	fx.svc.Process(context.Background(), u, KindSPX, "SPXVN1")

	require.Equal(t, []int64{-5}, fx.users.adjusts)
	assert.Equal(t, int64(95), u.Balance)
}

func TestNoChargeForFreeTier(t *testing.T) {
	fx := newFixture()
	u := &models.User{TelegramID: 1, Balance: 0, Status: "active"}

	fx.svc.Process(context.Background(), u, KindSPX, "SPXVN1")

	assert.Empty(t, fx.users.adjusts)
}

func TestCookieExpiredReply(t *testing.T) {
	fx := newFixture()
	fx.fetcher.result = &shopee.OrderFetchResult{Outcome: shopee.OutcomeCookieExpired}
	u := &models.User{TelegramID: 1, Balance: 100, Status: "active"}

	reply := fx.svc.Process(context.Background(), u, KindCookie, "SPC_ST=.dead")

	assert.Contains(t, reply.Text, "COOKIE KHÔNG HỢP LỆ")
	assert.False(t, reply.Stop)
	// Failed checks are logged but never charged.
	assert.Empty(t, fx.users.adjusts)
}

func TestOversizedPhoneBatchRejectedBeforeUpstream(t *testing.T) {
	fx := newFixture()
	u := &models.User{TelegramID: 1, Balance: 100, Status: "active"}

	phones := make([]string, 11)
	for i := range phones {
		phones[i] = "0912345678"
	}

	reply := fx.svc.ProcessPhones(context.Background(), u, phones)

	assert.Contains(t, reply.Text, "QUÁ NHIỀU SĐT")
	assert.Equal(t, 0, fx.phones.calls)
}

func TestPhoneBatch(t *testing.T) {
	fx := newFixture()
	fx.phones.locked["84912345678"] = true
	u := &models.User{TelegramID: 1, Balance: 100, Status: "active"}

	reply := fx.svc.ProcessPhones(context.Background(), u, []string{"0912345678", "0987654321"})

	assert.Equal(t, 2, fx.phones.calls)
	assert.Contains(t, reply.Text, "0912345678</code> — 🔒")
	assert.Contains(t, reply.Text, "0987654321</code> — ✅")
}

// Breaching the per-minute limit mid-message stops everything after it.
func TestRateLimitBreachStops(t *testing.T) {
	fx := newFixture()
	u := &models.User{TelegramID: 1, Balance: 100, Status: "active"}

	var reply Reply
	for i := 0; i < 21; i++ {
		reply = fx.svc.Process(context.Background(), u, KindSPX, "SPXVN1")
	}

	assert.True(t, reply.Stop)
	assert.Contains(t, reply.Text, "SPAM PHÁT HIỆN")
	assert.Contains(t, reply.Text, "Strike: <b>1</b>")
	// The 21st attempt never reached upstream.
	assert.Equal(t, 20, fx.spx.calls)
}
