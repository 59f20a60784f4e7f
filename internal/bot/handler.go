package bot

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ordercheck-bot-backend/internal/common/errors"
	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/features/check"
	qrmodels "ordercheck-bot-backend/internal/features/qrsession/models"
	qrservice "ordercheck-bot-backend/internal/features/qrsession/service"
	"ordercheck-bot-backend/internal/features/user/repository"
	"ordercheck-bot-backend/internal/platform/ledger"
	"ordercheck-bot-backend/internal/platform/telegram"
)

// Handler owns the webhook endpoints and routes each update to the right
// feature service. Telegram always gets HTTP 200 back; a non-200 would make
// it redeliver the same update in a loop.
type Handler struct {
	tg          *telegram.Client
	users       repository.UserRepository
	checks      *check.Service
	qr          *qrservice.Service
	ledger      *ledger.Client
	broadcaster *Broadcaster
	adminIDs    map[int64]bool
}

func NewHandler(
	tg *telegram.Client,
	users repository.UserRepository,
	checks *check.Service,
	qr *qrservice.Service,
	ledgerClient *ledger.Client,
	broadcaster *Broadcaster,
	adminIDs []int64,
) *Handler {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Handler{
		tg:          tg,
		users:       users,
		checks:      checks,
		qr:          qr,
		ledger:      ledgerClient,
		broadcaster: broadcaster,
		adminIDs:    admins,
	}
}

// Register mounts the webhook on both / and /webhook. Telegram setups in the
// wild point at either path, so both must answer.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/", h.liveness)
	r.GET("/webhook", h.liveness)
	r.POST("/", h.webhook)
	r.POST("/webhook", h.webhook)
}

func (h *Handler) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"msg":  "Bot is running",
		"path": "/ or /webhook",
	})
}

func (h *Handler) webhook(c *gin.Context) {
	var upd update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.String(http.StatusOK, "OK")
		return
	}

	if upd.CallbackQuery != nil {
		h.safeHandle(c.Request.Context(), upd.CallbackQuery.chatID(), func(ctx context.Context) {
			h.handleCallback(ctx, upd.CallbackQuery)
		})
		c.String(http.StatusOK, "OK")
		return
	}

	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		c.String(http.StatusOK, "OK")
		return
	}

	h.safeHandle(c.Request.Context(), msg.Chat.ID, func(ctx context.Context) {
		h.handleMessage(ctx, msg.Chat.ID, msg.From.ID, msg.From.Username, strings.TrimSpace(msg.Text))
	})
	c.String(http.StatusOK, "OK")
}

// safeHandle keeps a panicking handler from taking the server down with it.
func (h *Handler) safeHandle(ctx context.Context, chatID int64, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int64("chat_id", chatID).Msg("Update handler panicked")
			if chatID != 0 {
				h.tg.BestEffortSend(chatID, "❌ Bot gặp lỗi nội bộ, bạn gửi lại sau nhé.", nil)
			}
		}
	}()
	fn(ctx)
}

func (cq *callbackQuery) chatID() int64 {
	if cq.Message != nil && cq.Message.Chat != nil {
		return cq.Message.Chat.ID
	}
	return 0
}

func (h *Handler) handleMessage(ctx context.Context, chatID, teleID int64, username, text string) {
	switch text {
	case "/start":
		h.tg.BestEffortSend(chatID,
			"🤖 <b>BOT CHECK ĐƠN HÀNG SHOPEE + SPX</b>\n\n"+
				"Chọn chức năng bên dưới 👇",
			mainKeyboard())
		return

	case "✅ Kích Hoạt":
		h.handleActivate(ctx, chatID, teleID)
		return

	case "💰 Số dư":
		h.handleBalance(ctx, chatID, teleID)
		return

	case "💳 Nạp Tiền":
		h.tg.BestEffortSend(chatID,
			"💳 <b>NẠP TIỀN</b>\n\n"+
				"👉 Vui lòng nạp tiền tại bot chính:\n"+
				"💸 @nganmiu_bot",
			mainKeyboard())
		return

	case "🎟️ Bot Lưu Voucher":
		h.tg.BestEffortSend(chatID,
			"🎟️ <b>BOT LƯU VOUCHER</b>\n\n"+
				"👉 Mở bot tại:\n"+
				"https://t.me/nganmiu_bot",
			mainKeyboard())
		return

	case "🧩 Hệ Thống Bot NgânMiu":
		h.tg.BestEffortSend(chatID, systemMessage(), mainKeyboard())
		return

	case "📲 Lấy Cookie QR", "/qr":
		h.handleQRCreate(ctx, chatID, teleID)
		return
	}

	if strings.HasPrefix(text, "/broadcast") {
		h.handleBroadcast(ctx, chatID, teleID, strings.TrimSpace(strings.TrimPrefix(text, "/broadcast")))
		return
	}

	h.runChecks(ctx, chatID, teleID, username, text)
}

func (h *Handler) handleActivate(ctx context.Context, chatID, teleID int64) {
	u, err := h.users.GetByTelegramID(ctx, teleID)
	if err != nil {
		logger.Error().Err(err).Int64("telegram_id", teleID).Msg("User lookup failed")
		h.tg.BestEffortSend(chatID, "❌ Bot gặp lỗi nội bộ, bạn gửi lại sau nhé.", nil)
		return
	}

	if u != nil && u.Active() {
		h.tg.BestEffortSend(chatID,
			"✅ <b>TÀI KHOẢN ĐÃ KÍCH HOẠT</b>\n\n"+
				"Bạn có thể sử dụng bot bình thường 🚀",
			mainKeyboard())
		return
	}

	h.tg.BestEffortSend(chatID,
		"❌ <b>CHƯA KÍCH HOẠT</b>\n\n"+
			"👉 Vui lòng kích hoạt tại bot lưu voucher trước:\n"+
			"🎟️ @nganmiu_bot",
		mainKeyboard())
}

func (h *Handler) handleBalance(ctx context.Context, chatID, teleID int64) {
	u, err := h.users.GetByTelegramID(ctx, teleID)
	if err != nil {
		logger.Error().Err(err).Int64("telegram_id", teleID).Msg("User lookup failed")
		h.tg.BestEffortSend(chatID, "❌ Bot gặp lỗi nội bộ, bạn gửi lại sau nhé.", nil)
		return
	}
	if u == nil {
		h.tg.BestEffortSend(chatID,
			"❌ <b>Bạn chưa kích hoạt</b>\n\n"+
				"👉 Kích hoạt tại @nganmiu_bot",
			mainKeyboard())
		return
	}
	text := fmt.Sprintf("💰 <b>SỐ DƯ HIỆN TẠI</b>\n\n%s đ", formatBalance(u.Balance))
	if h.ledger != nil && h.ledger.Enabled() {
		if remote, err := h.ledger.Balance(ctx, teleID); err == nil {
			text += fmt.Sprintf("\n🎟️ Ví voucher: %s đ", formatBalance(remote))
		} else {
			logger.Debug().Err(err).Int64("telegram_id", teleID).Msg("Ledger balance lookup failed")
		}
	}
	h.tg.BestEffortSend(chatID, text, mainKeyboard())
}

func (h *Handler) handleBroadcast(ctx context.Context, chatID, teleID int64, text string) {
	if !h.adminIDs[teleID] {
		h.tg.BestEffortSend(chatID, "⛔ Lệnh này chỉ dành cho admin.", nil)
		return
	}
	if text == "" {
		h.tg.BestEffortSend(chatID,
			"📣 <b>BROADCAST</b>\n\nCú pháp: <code>/broadcast nội dung</code>", nil)
		return
	}

	// The fan-out can take minutes; do not hold the webhook open for it.
	go func() {
		sent, err := h.broadcaster.Send(context.Background(), text)
		if err != nil {
			h.tg.BestEffortSend(chatID, "⚠️ Broadcast thất bại: "+htmlEscape(err.Error()), nil)
			return
		}
		h.tg.BestEffortSend(chatID, fmt.Sprintf("📣 Đã gửi tới <b>%d</b> người dùng.", sent), nil)
	}()
}

// runChecks is the main path: classify every line, then push each value
// through the gate chain in order. A Stop reply aborts the rest of the
// message, so a breach mid-message leaves the later lines unprocessed.
func (h *Handler) runChecks(ctx context.Context, chatID, teleID int64, username, text string) {
	u, err := h.users.GetByTelegramID(ctx, teleID)
	if err != nil {
		logger.Error().Err(err).Int64("telegram_id", teleID).Msg("User lookup failed")
		h.tg.BestEffortSend(chatID, "❌ Bot gặp lỗi nội bộ, bạn gửi lại sau nhé.", nil)
		return
	}
	if u == nil {
		h.tg.BestEffortSend(chatID,
			"❌ <b>Tài khoản chưa kích hoạt</b>\n\n"+
				"Bấm <b>✅ Kích Hoạt</b> để kiểm tra, hoặc kích hoạt tại @nganmiu_bot.",
			mainKeyboard())
		return
	}
	u.Username = username

	if locked, until := h.checks.CheckLockout(ctx, u); locked {
		h.tg.BestEffortSend(chatID,
			fmt.Sprintf(
				"🚫 <b>Tài khoản đang bị khóa</b>\n\n"+
					"⏱️ Mở lại lúc: <b>%s</b>",
				until.Format("15:04 02/01")),
			nil)
		return
	}

	var (
		lines  = check.SplitLines(text)
		phones []string
		items  []struct {
			kind  check.Kind
			value string
		}
	)
	for _, line := range lines {
		switch kind := check.Classify(line); kind {
		case check.KindPhone:
			phones = append(phones, line)
		case check.KindCookie, check.KindSPX, check.KindGHN:
			items = append(items, struct {
				kind  check.Kind
				value string
			}{kind, line})
		}
	}

	if len(items) == 0 && len(phones) == 0 {
		h.tg.BestEffortSend(chatID,
			"❌ <b>Dữ liệu không hợp lệ</b>\n\n"+
				"🪙 Cookie: <code>SPC_ST=.xxxxx</code>\n"+
				"🚚 SPX: <code>SPXVNxxxxx</code>",
			mainKeyboard())
		return
	}

	for _, item := range items {
		reply := h.checks.Process(ctx, u, item.kind, item.value)
		h.tg.BestEffortSend(chatID, reply.Text, nil)
		if reply.Stop {
			return
		}
		// Light flood protection toward the Telegram API.
		time.Sleep(200 * time.Millisecond)
	}

	if len(phones) > 0 {
		reply := h.checks.ProcessPhones(ctx, u, phones)
		h.tg.BestEffortSend(chatID, reply.Text, nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cq *callbackQuery) {
	if cq.ID != "" {
		if err := h.tg.AnswerCallbackQuery(cq.ID, ""); err != nil {
			logger.Debug().Err(err).Msg("Callback answer failed")
		}
	}

	chatID := cq.chatID()
	if chatID == 0 || cq.From == nil {
		return
	}
	teleID := cq.From.ID

	switch action := cq.Data; {
	case action == "ACTIVATE":
		username := cq.From.Username
		if username == "" {
			username = "(none)"
		}
		h.tg.BestEffortSend(chatID,
			fmt.Sprintf(
				"✅ <b>KÍCH HOẠT</b>\n\n"+
					"🆔 Tele ID: <code>%d</code>\n"+
					"👤 Username: @%s\n\n"+
					"👉 Nếu chưa kích hoạt, dùng Tele ID này tại @nganmiu_bot.",
				teleID, username),
			nil)

	case action == "BALANCE":
		h.handleBalance(ctx, chatID, teleID)

	case action == "HELP":
		h.tg.BestEffortSend(chatID, helpMessage(), nil)

	case action == "CHECK":
		h.tg.BestEffortSend(chatID,
			"📦 <b>GỬI DỮ LIỆU CHECK</b>\n\n"+
				"• Mỗi dòng 1 cookie hoặc 1 mã vận đơn\n"+
				"• Ví dụ:\n"+
				"<code>SPC_ST=.xxxxx</code>\n"+
				"<code>SPXVN05805112503C</code>",
			nil)

	case action == "QR":
		h.handleQRCreate(ctx, chatID, teleID)

	case strings.HasPrefix(action, "QR_CHECK:"):
		h.handleQRCheck(ctx, chatID, teleID, strings.TrimPrefix(action, "QR_CHECK:"))

	case strings.HasPrefix(action, "QR_CANCEL:"):
		sessionID := strings.TrimPrefix(action, "QR_CANCEL:")
		if h.qr.Cancel(sessionID, teleID) {
			h.tg.BestEffortSend(chatID, "🛑 <b>ĐÃ HỦY PHIÊN QR</b>", nil)
		} else {
			h.tg.BestEffortSend(chatID, "⚠️ Phiên QR không còn hiệu lực.", nil)
		}
	}
}

// handleQRCheck is the user-triggered resolve. Pressing the button again
// after delivery just re-sends the cached cookie.
func (h *Handler) handleQRCheck(ctx context.Context, chatID, teleID int64, sessionID string) {
	cookie, err := h.qr.ResolveCookie(ctx, sessionID, teleID)
	if err != nil {
		appErr, ok := errors.AsAppError(err)
		if !ok {
			h.tg.BestEffortSend(chatID, "⚠️ Không kiểm tra được phiên QR, thử lại sau.", nil)
			return
		}
		switch appErr.Code {
		case errors.ErrCodeSessionNotFound:
			h.tg.BestEffortSend(chatID, "⚠️ Phiên QR không còn hiệu lực.", nil)
		case errors.ErrCodeSessionExpired:
			h.tg.BestEffortSend(chatID,
				"⌛ <b>MÃ QR ĐÃ HẾT HẠN</b>\n\n"+
					"Bấm 📲 <b>Lấy Cookie QR</b> để tạo mã mới.", nil)
		case errors.ErrCodeSessionState:
			h.tg.BestEffortSend(chatID, "⏳ Bạn chưa quét mã, mở app Shopee và quét nhé.", nil)
		default:
			h.tg.BestEffortSend(chatID, "⚠️ Không kiểm tra được phiên QR, thử lại sau.", nil)
		}
		return
	}

	h.tg.BestEffortSend(chatID,
		"✅ <b>ĐĂNG NHẬP THÀNH CÔNG</b>\n\n"+
			"🪙 Cookie:\n<code>"+htmlEscape(cookie)+"</code>\n\n"+
			"<i>ℹ️ Tap vào cookie để copy nhanh.</i>",
		nil)
}

func (h *Handler) handleQRCreate(ctx context.Context, chatID, teleID int64) {
	u, err := h.users.GetByTelegramID(ctx, teleID)
	if err != nil {
		logger.Error().Err(err).Int64("telegram_id", teleID).Msg("User lookup failed")
		h.tg.BestEffortSend(chatID, "❌ Bot gặp lỗi nội bộ, bạn gửi lại sau nhé.", nil)
		return
	}
	if u == nil {
		h.tg.BestEffortSend(chatID,
			"❌ <b>Bạn chưa kích hoạt</b>\n\n"+
				"👉 Kích hoạt tại @nganmiu_bot",
			mainKeyboard())
		return
	}

	sess, png, err := h.qr.Create(ctx, teleID, chatID)
	if err != nil {
		logger.Error().Err(err).Int64("telegram_id", teleID).Msg("QR session create failed")
		h.tg.BestEffortSend(chatID,
			"⚠️ <b>KHÔNG TẠO ĐƯỢC MÃ QR</b>\n\nVui lòng thử lại sau ít phút.", nil)
		return
	}

	if err := h.tg.SendPhoto(chatID, png, "📲 <b>QUÉT MÃ QR BẰNG APP SHOPEE</b>\n\n"+
		"1️⃣ Mở app Shopee\n"+
		"2️⃣ Quét mã trong vòng 3 phút\n"+
		"3️⃣ Bot sẽ gửi cookie ngay khi bạn xác nhận"); err != nil {
		logger.Error().Err(err).Msg("QR photo send failed")
		h.tg.BestEffortSend(chatID,
			"⚠️ <b>KHÔNG GỬI ĐƯỢC MÃ QR</b>\n\nVui lòng thử lại sau ít phút.", nil)
		return
	}

	h.tg.BestEffortSend(chatID, "⏳ Đang chờ bạn quét mã...", telegram.InlineKeyboard{
		InlineKeyboard: [][]telegram.InlineButton{
			{
				{Text: "🔄 Kiểm tra ngay", CallbackData: "QR_CHECK:" + sess.ID},
				{Text: "🛑 Hủy phiên", CallbackData: "QR_CANCEL:" + sess.ID},
			},
		},
	})
}

// QRDelivered sends the exchanged cookie to its owner. Runs on the session
// watcher goroutine.
func (h *Handler) QRDelivered(sess *qrmodels.Session) {
	account := sess.Account
	if account == "" {
		account = "-"
	}
	h.tg.BestEffortSend(sess.ChatID,
		fmt.Sprintf(
			"✅ <b>ĐĂNG NHẬP THÀNH CÔNG</b>\n\n"+
				"👤 Tài khoản: <b>%s</b>\n"+
				"🪙 Cookie:\n<code>%s</code>\n\n"+
				"<i>ℹ️ Tap vào cookie để copy nhanh.</i>",
			htmlEscape(account), htmlEscape(sess.Cookie)),
		nil)
}

// QRExpired tells the owner the session timed out.
func (h *Handler) QRExpired(sess *qrmodels.Session) {
	h.tg.BestEffortSend(sess.ChatID,
		"⌛ <b>MÃ QR ĐÃ HẾT HẠN</b>\n\n"+
			"Bấm 📲 <b>Lấy Cookie QR</b> để tạo mã mới.",
		nil)
}

func mainKeyboard() telegram.ReplyKeyboard {
	return telegram.ReplyKeyboard{
		Keyboard: [][]string{
			{"✅ Kích Hoạt", "💰 Số dư"},
			{"💳 Nạp Tiền", "🎟️ Bot Lưu Voucher"},
			{"📲 Lấy Cookie QR"},
			{"🧩 Hệ Thống Bot NgânMiu"},
		},
		ResizeKeyboard: true,
	}
}

func helpMessage() string {
	return "📌 <b>HƯỚNG DẪN</b>\n\n" +
		"1) Gửi <b>cookie SPC_ST</b> để bot trả <b>thông tin đơn hàng</b>\n" +
		"   Ví dụ:\n" +
		"<code>SPC_ST=.xxxxx</code>\n\n" +
		"2) Gửi <b>mã vận đơn SPX</b> để tra lịch trình \n" +
		"   Ví dụ:\n" +
		"<code>SPXVN05805112503C</code>\n\n" +
		"💡 Mỗi dòng 1 dữ liệu. Gửi nhiều dòng bot sẽ check lần lượt."
}

func systemMessage() string {
	return "🧩 <b>HỆ THỐNG BOT NGÂNMIU</b>\n" +
		"━━━━━━━━━━━━━━━\n\n" +
		"🧑‍💼 <b>Admin hỗ trợ</b>\n" +
		"👉 @BonBonxHPx\n\n" +
		"👥 <b>Group Hỗ Trợ</b>\n" +
		"👉 https://t.me/botxshopee\n\n" +
		"🤖 <b>Danh sách Bot</b>\n" +
		"━━━━━━━━━━━━━━━\n" +
		"🎟️ <b>Bot Lưu Voucher</b>\n" +
		"👉 @nganmiu_bot\n\n" +
		"📦 <b>Bot Check Đơn Hàng</b>\n" +
		"👉 @ShopeexCheck_Bot\n\n" +
		"📱 <b>Bot Thuê Số</b>\n" +
		"👉 <i>Sắp mở</i> 🔜\n\n" +
		"✨ <i>Book Đơn Mã New tại NganMiu.Store</i>"
}

// formatBalance renders 1234567 as "1,234,567".
func formatBalance(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func htmlEscape(s string) string {
	return html.EscapeString(s)
}
