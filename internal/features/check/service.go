package check

import (
	"context"
	"fmt"
	"time"

	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/features/checklog"
	"ordercheck-bot-backend/internal/features/ratelimit"
	"ordercheck-bot-backend/internal/features/user/models"
	"ordercheck-bot-backend/internal/features/user/repository"
	"ordercheck-bot-backend/internal/platform/ghn"
	"ordercheck-bot-backend/internal/platform/shopee"
	"ordercheck-bot-backend/internal/platform/spx"
)

// OrderFetcher pulls the order list and details for one cookie.
type OrderFetcher interface {
	FetchOrders(ctx context.Context, cookie string) (*shopee.OrderFetchResult, error)
}

// PhoneChecker probes whether a phone number belongs to a locked account.
type PhoneChecker interface {
	CheckPhone(ctx context.Context, phone84, probeCookie string) (bool, error)
}

// SPXTracker looks up one SPX waybill.
type SPXTracker interface {
	Track(ctx context.Context, code string) (*spx.TrackResult, error)
}

// GHNTracker looks up one GHN order code.
type GHNTracker interface {
	Track(ctx context.Context, code string) (*ghn.TrackResult, error)
}

// Prices is the per-operation cost charged against a positive balance.
type Prices struct {
	OrderCheck int64
	SPXCheck   int64
	GHNCheck   int64
	PhoneCheck int64
}

// Reply is what the bot should send back for one processed value. Stop means
// the rest of the message must not be processed (breach or exhausted quota).
type Reply struct {
	Text string
	Stop bool
}

// PhoneResult is the outcome for one number in a batch phone check.
type PhoneResult struct {
	Phone  string
	Locked bool
	Err    error
}

// Service runs the gate chain and dispatches each value to its checker.
// Gate order is fixed: rate limit first, then the free-tier quota, then the
// upstream call. A denied value never reaches upstream.
type Service struct {
	users       repository.UserRepository
	flusher     *checklog.Flusher
	limiter     *ratelimit.Service
	orders      OrderFetcher
	phones      PhoneChecker
	spxTracker  SPXTracker
	ghnTracker  GHNTracker
	cache       *Cache
	prices      Prices
	freeLimit   int
	maxPhones   int
	probeCookie string
	now         func() time.Time
}

func NewService(
	users repository.UserRepository,
	flusher *checklog.Flusher,
	limiter *ratelimit.Service,
	orders OrderFetcher,
	phones PhoneChecker,
	spxTracker SPXTracker,
	ghnTracker GHNTracker,
	cache *Cache,
	prices Prices,
	freeLimit, maxPhones int,
	probeCookie string,
) *Service {
	return &Service{
		users:       users,
		flusher:     flusher,
		limiter:     limiter,
		orders:      orders,
		phones:      phones,
		spxTracker:  spxTracker,
		ghnTracker:  ghnTracker,
		cache:       cache,
		prices:      prices,
		freeLimit:   freeLimit,
		maxPhones:   maxPhones,
		probeCookie: probeCookie,
		now:         time.Now,
	}
}

// CheckLockout reports whether the user is locked out right now.
func (s *Service) CheckLockout(ctx context.Context, u *models.User) (bool, time.Time) {
	return s.limiter.CheckLockout(ctx, u)
}

// gate runs the rate limiter and the free-tier quota for one check attempt.
// A non-nil reply means the attempt is denied.
func (s *Service) gate(ctx context.Context, u *models.User) *Reply {
	if breach, ok := s.limiter.Allow(ctx, u); !ok {
		return &Reply{
			Text: fmt.Sprintf(
				"🚫 <b>SPAM PHÁT HIỆN</b>\n\n"+
					"⚠️ Strike: <b>%d</b>\n"+
					"⏱️ Band tới: <b>%s</b>",
				breach.Strike, breach.Until.Format("15:04 02/01"),
			),
			Stop: true,
		}
	}

	// Paid users skip the daily quota entirely.
	if u.Balance <= 0 {
		used, err := s.flusher.CountToday(ctx, u.TelegramID, s.now())
		if err != nil {
			logger.Warn().Err(err).Int64("telegram_id", u.TelegramID).Msg("Quota count failed")
			// Fail open: a broken log store must not lock everyone out.
			return nil
		}
		if used >= s.freeLimit {
			return &Reply{
				Text: fmt.Sprintf(
					"⚠️ <b>HẾT LƯỢT MIỄN PHÍ HÔM NAY</b>\n\n"+
						"📊 Đã dùng: %d/%d request",
					used, s.freeLimit,
				),
				Stop: true,
			}
		}
	}
	return nil
}

// Process handles one classified value for a registered, non-locked user.
func (s *Service) Process(ctx context.Context, u *models.User, kind Kind, value string) Reply {
	if denied := s.gate(ctx, u); denied != nil {
		return *denied
	}

	switch kind {
	case KindCookie:
		return s.checkCookie(ctx, u, value)
	case KindSPX:
		return s.checkSPX(ctx, u, value)
	case KindGHN:
		return s.checkGHN(ctx, u, value)
	default:
		return Reply{Text: usageMessage()}
	}
}

// ProcessPhones handles a batch of phone numbers as one check. Oversized
// batches are rejected before the rate limiter and before any upstream call.
func (s *Service) ProcessPhones(ctx context.Context, u *models.User, phones []string) Reply {
	if s.probeCookie == "" {
		return Reply{Text: "🚧 <b>CHECK SĐT TẠM KHÓA</b>\n\nTính năng đang bảo trì, thử lại sau."}
	}
	if len(phones) > s.maxPhones {
		return Reply{
			Text: fmt.Sprintf(
				"❌ <b>QUÁ NHIỀU SĐT</b>\n\n"+
					"Tối đa <b>%d số</b> mỗi tin nhắn, bạn gửi %d số.",
				s.maxPhones, len(phones),
			),
		}
	}

	if denied := s.gate(ctx, u); denied != nil {
		return *denied
	}

	results := make([]PhoneResult, 0, len(phones))
	for _, phone := range phones {
		normalized := NormalizePhone(phone)
		if normalized == "" {
			results = append(results, PhoneResult{Phone: phone, Err: fmt.Errorf("unrecognized number")})
			continue
		}
		locked, err := s.phones.CheckPhone(ctx, normalized, s.probeCookie)
		results = append(results, PhoneResult{Phone: phone, Locked: locked, Err: err})
	}

	s.charge(ctx, u, s.prices.PhoneCheck)
	s.logCheck(u, fmt.Sprintf("%s (+%d)", phones[0], len(phones)-1), "check_phone")
	return Reply{Text: RenderPhoneResults(results)}
}

func (s *Service) checkCookie(ctx context.Context, u *models.User, cookie string) Reply {
	if cached, ok := s.cache.Get(ctx, cookie); ok {
		s.logCheck(u, cookie, cached.Outcome+"_cached")
		return Reply{Text: cached.Rendered}
	}

	res, err := s.orders.FetchOrders(ctx, cookie)
	if err != nil {
		logger.Error().Err(err).Int64("telegram_id", u.TelegramID).Msg("Order fetch failed")
		s.logCheck(u, cookie, "upstream_error")
		return Reply{Text: busyMessage()}
	}

	switch res.Outcome {
	case shopee.OutcomeOK:
		rendered := RenderOrders(res.Details)
		s.cache.Set(ctx, cookie, &CachedOrders{
			Outcome:  string(res.Outcome),
			Rendered: rendered,
			CachedAt: s.now(),
		})
		s.charge(ctx, u, s.prices.OrderCheck)
		s.logCheck(u, cookie, "check_orders")
		return Reply{Text: rendered}

	case shopee.OutcomeCookieExpired:
		s.logCheck(u, cookie, "cookie_expired")
		return Reply{Text: "🔒 <b>COOKIE KHÔNG HỢP LỆ</b>\n\n" +
			"❌ Cookie đã <b>hết hạn</b> hoặc <b>bị Shopee khóa</b>."}

	case shopee.OutcomeNoOrders:
		s.logCheck(u, cookie, "no_orders")
		return Reply{Text: "📭 <b>KHÔNG CÓ ĐƠN HÀNG</b>\n\n" +
			"Cookie hợp lệ nhưng hiện <b>không có đơn nào</b>."}

	default:
		note := string(res.Outcome)
		if res.Detail != "" {
			note = res.Detail
		}
		s.logCheck(u, cookie, note)
		return Reply{Text: busyMessage()}
	}
}

func (s *Service) checkSPX(ctx context.Context, u *models.User, code string) Reply {
	res, err := s.spxTracker.Track(ctx, code)
	if err != nil {
		logger.Error().Err(err).Str("code", checklog.MaskValue(code)).Msg("SPX track failed")
		s.logCheck(u, code, "spx_error")
		return Reply{Text: busyMessage()}
	}
	if res.Found {
		s.charge(ctx, u, s.prices.SPXCheck)
	}
	s.logCheck(u, code, "check_spx")
	return Reply{Text: RenderSPX(code, res)}
}

func (s *Service) checkGHN(ctx context.Context, u *models.User, code string) Reply {
	res, err := s.ghnTracker.Track(ctx, code)
	if err != nil {
		logger.Error().Err(err).Str("code", checklog.MaskValue(code)).Msg("GHN track failed")
		s.logCheck(u, code, "ghn_error")
		return Reply{Text: busyMessage()}
	}
	if res.Found {
		s.charge(ctx, u, s.prices.GHNCheck)
	}
	s.logCheck(u, code, "check_ghn")
	return Reply{Text: RenderGHN(code, res)}
}

// charge deducts the operation price from a paying balance. Free-tier users
// (balance at or below zero) are metered by the daily quota instead.
func (s *Service) charge(ctx context.Context, u *models.User, price int64) {
	if price <= 0 || u.Balance <= 0 {
		return
	}
	newBalance, err := s.users.AdjustBalance(ctx, u.TelegramID, -price)
	if err != nil {
		logger.Warn().Err(err).Int64("telegram_id", u.TelegramID).Msg("Balance deduction failed")
		return
	}
	u.Balance = newBalance
}

func (s *Service) logCheck(u *models.User, value, note string) {
	s.flusher.Add(checklog.CheckEntry{
		Time:         s.now(),
		TelegramID:   u.TelegramID,
		Username:     u.Username,
		MaskedValue:  checklog.MaskValue(value),
		BalanceAfter: u.Balance,
		Note:         note,
	})
}

func busyMessage() string {
	return "⚠️ <b>HỆ THỐNG BẬN</b>\n\nVui lòng thử lại sau ít phút."
}

func usageMessage() string {
	return "❌ <b>Dữ liệu không hợp lệ</b>\n\n" +
		"🪙 Cookie: <code>SPC_ST=.xxxxx</code>\n" +
		"🚚 SPX: <code>SPXVNxxxxx</code>\n" +
		"🚛 GHN: <code>GHNxxxxxx</code>\n" +
		"📱 SĐT: <code>0xxxxxxxxx</code>"
}
