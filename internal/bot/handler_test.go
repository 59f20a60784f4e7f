package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordercheck-bot-backend/internal/features/check"
	"ordercheck-bot-backend/internal/features/checklog"
	"ordercheck-bot-backend/internal/features/ratelimit"
	"ordercheck-bot-backend/internal/features/user/models"
	"ordercheck-bot-backend/internal/platform/ghn"
	"ordercheck-bot-backend/internal/platform/shopee"
	"ordercheck-bot-backend/internal/platform/spx"
	"ordercheck-bot-backend/internal/platform/telegram"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(nil, nil, nil, nil, nil, nil, nil)
	h.Register(r)
	return r
}

func TestLiveness(t *testing.T) {
	r := newTestRouter()

	for _, path := range []string{"/", "/webhook"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, "path=%s", path)
		assert.Contains(t, w.Body.String(), `"Bot is running"`)
	}
}

// Telegram redelivers any update that does not get HTTP 200 back, so the
// webhook answers 200 even for bodies it cannot use.
func TestWebhookAlwaysAnswers200(t *testing.T) {
	r := newTestRouter()

	bodies := []string{
		``,
		`not json at all`,
		`{}`,
		`{"update_id": 1}`,
		`{"message": {"text": "no chat or from"}}`,
		`{"callback_query": {"id": "", "data": "BALANCE"}}`,
	}

	for _, path := range []string{"/", "/webhook"} {
		for _, body := range bodies {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code, "path=%s body=%q", path, body)
			assert.Equal(t, "OK", w.Body.String(), "path=%s body=%q", path, body)
		}
	}
}

type stubUsers struct {
	user     *models.User
	setCalls int
}

func (s *stubUsers) GetByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	return s.user, nil
}
func (s *stubUsers) ListTelegramIDs(ctx context.Context) ([]int64, error) { return nil, nil }
func (s *stubUsers) ClearPunishment(ctx context.Context, id int64) error  { return nil }
func (s *stubUsers) SetPunishment(ctx context.Context, id int64, strike int, until time.Time) error {
	s.setCalls++
	return nil
}
func (s *stubUsers) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	return 0, nil
}

type stubLogs struct{}

func (stubLogs) AppendChecks(ctx context.Context, entries []checklog.CheckEntry) error { return nil }
func (stubLogs) AppendSpam(ctx context.Context, entry checklog.SpamEntry) error        { return nil }
func (stubLogs) AppendQR(ctx context.Context, entry checklog.QREntry) error            { return nil }
func (stubLogs) CountChecksToday(ctx context.Context, id int64, day time.Time) (int, error) {
	return 0, nil
}

type stubFetcher struct{ calls int }

func (s *stubFetcher) FetchOrders(ctx context.Context, cookie string) (*shopee.OrderFetchResult, error) {
	s.calls++
	return &shopee.OrderFetchResult{Outcome: shopee.OutcomeOK}, nil
}

type stubPhones struct{ calls int }

func (s *stubPhones) CheckPhone(ctx context.Context, phone84, probeCookie string) (bool, error) {
	s.calls++
	return false, nil
}

type stubSPX struct{ calls int }

func (s *stubSPX) Track(ctx context.Context, code string) (*spx.TrackResult, error) {
	s.calls++
	return &spx.TrackResult{Found: true}, nil
}

type stubGHN struct{ calls int }

func (s *stubGHN) Track(ctx context.Context, code string) (*ghn.TrackResult, error) {
	s.calls++
	return &ghn.TrackResult{Found: true}, nil
}

type sentRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *sentRecorder) add(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *sentRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// A locked-out user gets exactly one refusal and nothing else happens: no
// upstream call, no minute counting, no new strike. The lockout check runs
// before the limiter ever sees the request.
func TestLockedUserNeverReachesCountingOrUpstream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := &sentRecorder{}
	tgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		rec.add(payload.Text)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer tgSrv.Close()

	until := time.Now().Add(time.Hour)
	users := &stubUsers{user: &models.User{
		TelegramID:   5,
		Status:       "active",
		StrikeCount:  1,
		LockoutUntil: &until,
	}}
	fetcher := &stubFetcher{}
	phones := &stubPhones{}
	spxStub := &stubSPX{}
	ghnStub := &stubGHN{}

	limiter := ratelimit.NewService(users, stubLogs{}, 20, ratelimit.Ladder{
		Band1: time.Hour, Band2: 24 * time.Hour, Band3: 7 * 24 * time.Hour,
	})
	checks := check.NewService(
		users,
		checklog.NewFlusher(stubLogs{}, 100, time.Hour),
		limiter,
		fetcher, phones, spxStub, ghnStub,
		check.NewCache(nil, 0),
		check.Prices{OrderCheck: 10, SPXCheck: 5, GHNCheck: 5, PhoneCheck: 5},
		10, 10,
		"SPC_ST=.probe",
	)

	tg := telegram.NewClientWithBaseURL(tgSrv.URL, time.Second)
	h := NewHandler(tg, users, checks, nil, nil, nil, nil)
	r := gin.New()
	h.Register(r)

	body := `{"message": {"chat": {"id": 5}, "from": {"id": 5, "username": "u"}, "text": "SPC_ST=.abc\nSPXVN1\n0912345678"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	texts := rec.snapshot()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Tài khoản đang bị khóa")

	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, 0, spxStub.calls)
	assert.Equal(t, 0, phones.calls)
	assert.Equal(t, 0, users.setCalls)
	assert.Equal(t, 1, users.user.StrikeCount)
}

func TestMainKeyboard(t *testing.T) {
	kb := mainKeyboard()
	assert.True(t, kb.ResizeKeyboard)
	require.NotEmpty(t, kb.Keyboard)
	assert.Equal(t, []string{"✅ Kích Hoạt", "💰 Số dư"}, kb.Keyboard[0])
}
