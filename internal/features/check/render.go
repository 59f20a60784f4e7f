package check

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ordercheck-bot-backend/internal/platform/ghn"
	"ordercheck-bot-backend/internal/platform/shopee"
	"ordercheck-bot-backend/internal/platform/spx"
)

// statusAliases maps Shopee status codes to user-facing Vietnamese text.
var statusAliases = map[string]string{
	"order_status_text_to_receive_delivery_done": "✅ Giao hàng thành công",
	"order_tooltip_to_receive_delivery_done":     "✅ Giao hàng thành công",
	"label_order_delivered":                      "✅ Giao hàng thành công",

	"order_list_text_to_receive_non_cod": "🚚 Đang chờ nhận (không COD)",
	"label_to_receive":                   "🚚 Đang chờ nhận",
	"label_order_to_receive":             "🚚 Đang chờ nhận",

	"label_order_to_ship":      "📦 Chờ giao hàng",
	"label_order_being_packed": "📦 Đang chuẩn bị hàng",
	"label_order_processing":   "🔄 Đang xử lý",

	"label_order_paid":             "💰 Đã thanh toán",
	"label_order_unpaid":           "💸 Chưa thanh toán",
	"label_order_waiting_shipment": "📦 Chờ bàn giao vận chuyển",
	"label_order_shipped":          "🚛 Đã bàn giao vận chuyển",

	"label_order_delivery_failed": "❌ Giao không thành công",
	"label_order_cancelled":       "❌ Đã hủy",
	"label_order_return_refund":   "↩️ Trả hàng / Hoàn tiền",

	"order_list_text_to_ship_ship_by_date_not_calculated":   "🎖 Đơn hàng chờ Shopee duyệt",
	"order_status_text_to_ship_ship_by_date_not_calculated": "🎖 Đơn hàng chờ Shopee duyệt",
	"label_ship_by_date_not_calculated":                     "🎖 Đơn hàng chờ Shopee duyệt",

	"label_preparing_order":                          "📦 Chờ shop gửi hàng",
	"order_list_text_to_ship_order_shipbydate":       "📦 Chờ shop gửi hàng",
	"order_status_text_to_ship_order_shipbydate":     "📦 Người gửi đang chuẩn bị hàng",
	"order_list_text_to_ship_order_shipbydate_cod":   "📦 Chờ shop gửi hàng (COD)",
	"order_status_text_to_ship_order_shipbydate_cod": "📦 Chờ shop gửi hàng (COD)",
	"order_status_text_to_ship_order_edt_cod":        "📦 Chờ shop gửi hàng (COD)",
}

var (
	statusPrefixRe = regexp.MustCompile(`(?i)^tình trạng\s*:?\s*`)
	shipperPhoneRe = regexp.MustCompile(`\b0\d{9,10}\b`)
)

func esc(s string) string {
	return html.EscapeString(s)
}

func shortText(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimRight(s[:maxLen-3], " ") + "..."
}

func mapStatusCode(code string) string {
	if alias, ok := statusAliases[code]; ok {
		return alias
	}
	return code
}

func normalizeStatusText(status string) string {
	return strings.TrimSpace(statusPrefixRe.ReplaceAllString(strings.TrimSpace(status), ""))
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// formatMoney renders 1234567 as "1,234,567".
func formatMoney(n int64) string {
	s := strconv.FormatInt(n, 10)
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

// RenderOrder formats one Shopee order detail as a mobile-friendly card.
func RenderOrder(detail map[string]interface{}) string {
	tracking := asString(shopee.FindFirstKey(detail, "tracking_no"))
	if tracking == "" {
		tracking = asString(shopee.FindFirstKey(detail, "tracking_number"))
	}
	if tracking == "" {
		tracking = "-"
	}

	// Timeline description wins over the raw status object.
	statusText := "-"
	if info, ok := shopee.FindFirstKey(detail, "tracking_info").(map[string]interface{}); ok {
		for _, key := range []string{"description", "text", "status_text"} {
			if s := strings.TrimSpace(asString(info[key])); s != "" {
				statusText = s
				break
			}
		}
	}
	if statusText == "" || statusText == "-" {
		raw := "-"
		switch statusObj := shopee.FindFirstKey(detail, "status").(type) {
		case map[string]interface{}:
			for _, key := range []string{"text", "header_text", "list_view_text"} {
				if s := strings.TrimSpace(asString(statusObj[key])); s != "" {
					raw = s
					break
				}
			}
		case nil:
		default:
			raw = asString(statusObj)
		}
		raw = normalizeStatusText(raw)
		if mapped := mapStatusCode(raw); mapped != "" {
			statusText = mapped
		}
		if statusText == "" {
			statusText = "-"
		}
	}

	var codAmount int64
	for _, key := range []string{"cod_amount", "total_cod", "buyer_total_amount"} {
		if n := asInt(shopee.FindFirstKey(detail, key)); n > 0 {
			codAmount = n
			break
		}
	}

	var productNames []string
	items := shopee.FindFirstKey(detail, "item_list")
	if items == nil {
		items = shopee.FindFirstKey(detail, "items")
	}
	if list, ok := items.([]interface{}); ok {
		for _, it := range list {
			entry, ok := it.(map[string]interface{})
			if !ok {
				continue
			}
			name := strings.TrimSpace(asString(entry["name"]))
			if name == "" {
				name = strings.TrimSpace(asString(entry["item_name"]))
			}
			if name != "" {
				productNames = append(productNames, name)
			}
		}
	}
	productText := "-"
	if len(productNames) > 0 {
		productText = productNames[0]
		if len(productNames) > 1 {
			productText += fmt.Sprintf(" (+%d SP)", len(productNames)-1)
		}
	}
	productText = shortText(productText, 68)

	recAddr, _ := shopee.FindFirstKey(detail, "recipient_address").(map[string]interface{})

	pick := func(directKey, addrKey string) string {
		if s := strings.TrimSpace(asString(shopee.FindFirstKey(detail, directKey))); s != "" {
			return s
		}
		if recAddr != nil {
			if s := strings.TrimSpace(asString(recAddr[addrKey])); s != "" {
				return s
			}
		}
		return "-"
	}

	recipientName := pick("shipping_name", "name")
	recipientPhone := pick("shipping_phone", "phone")
	address := shortText(pick("shipping_address", "full_address"), 78)

	shipperName := strings.TrimSpace(asString(shopee.FindFirstKey(detail, "driver_name")))
	if shipperName == "" {
		shipperName = "-"
	}
	shipperPhone := strings.TrimSpace(asString(shopee.FindFirstKey(detail, "driver_phone")))
	if shipperPhone == "" {
		shipperPhone = "-"
	}

	var b strings.Builder
	b.WriteString("🧾 <u><b>ĐƠN HÀNG</b></u>\n")
	fmt.Fprintf(&b, "📦 <b>MVĐ:</b> <code>%s</code>\n", esc(tracking))
	fmt.Fprintf(&b, "📊 <b>Trạng thái:</b> %s\n", esc(statusText))
	fmt.Fprintf(&b, "🎁 <b>Sản phẩm:</b> %s\n", esc(productText))
	if codAmount > 0 {
		fmt.Fprintf(&b, "💵 <b>COD:</b> %sđ\n", formatMoney(codAmount))
	}
	b.WriteString("\n🚚 <u><b>GIAO NHẬN</b></u>\n")
	fmt.Fprintf(&b, "👤 <b>Người nhận:</b> %s\n", esc(recipientName))
	fmt.Fprintf(&b, "📞 <b>SĐT:</b> %s\n", esc(recipientPhone))
	fmt.Fprintf(&b, "📍 <b>Địa chỉ:</b> %s\n", esc(address))
	fmt.Fprintf(&b, "🚚 <b>Shipper:</b> %s\n", esc(shipperName))
	fmt.Fprintf(&b, "📱 <b>SĐT ship:</b> %s\n\n", esc(shipperPhone))
	b.WriteString("<i>ℹ️ Tap vào MVĐ để copy nhanh.</i>")
	return b.String()
}

// RenderOrders joins every order card into one message.
func RenderOrders(details []map[string]interface{}) string {
	if len(details) == 0 {
		return "📭 <b>Không có đơn hàng</b>"
	}
	blocks := make([]string, 0, len(details))
	for _, d := range details {
		blocks = append(blocks, RenderOrder(d))
	}
	return strings.Join(blocks, "\n\n")
}

// RenderSPX formats an SPX tracking result with the last five timeline events.
func RenderSPX(code string, res *spx.TrackResult) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if res == nil || !res.Found {
		return fmt.Sprintf("🔎 <b>%s</b>\n❌ Không tìm thấy thông tin", esc(code))
	}

	var timeline []string
	phone := ""
	for _, rec := range res.Records {
		ts := ""
		if rec.ActualTime > 0 {
			ts = time.Unix(rec.ActualTime, 0).Format("02/01/2006 15:04")
		}
		location := rec.CurrentLocation.LocationName
		if phone == "" {
			if found := shipperPhoneRe.FindString(rec.BuyerDescription); found != "" {
				phone = found
			}
		}
		timeline = append(timeline, fmt.Sprintf("• %s — %s — %s", ts, rec.BuyerDescription, location))
	}

	timelineText := "Chưa có thông tin"
	if len(timeline) > 0 {
		if len(timeline) > 5 {
			timeline = timeline[len(timeline)-5:]
		}
		timelineText = strings.Join(timeline, "\n")
	}

	phoneText := "-"
	if phone != "" {
		phoneText = esc(phone)
	}

	return fmt.Sprintf(
		"🔎 <b>MVĐ:</b> <code>%s</code>\n"+
			"📊 <b>Trạng thái:</b> Đang vận chuyển\n"+
			"📱 <b>SĐT shipper:</b> <code>%s</code>\n\n"+
			"📜 <b>Timeline:</b>\n%s",
		esc(code), phoneText, timelineText,
	)
}

// RenderGHN formats a GHN tracking result in the same card shape as SPX.
func RenderGHN(code string, res *ghn.TrackResult) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if res == nil || !res.Found {
		return fmt.Sprintf("🔎 <b>%s</b>\n❌ Không tìm thấy thông tin", esc(code))
	}

	status := strings.TrimSpace(res.Status)
	if status == "" {
		status = "-"
	}

	var timeline []string
	for _, ev := range res.Events {
		ts := ""
		if !ev.Time.IsZero() {
			ts = ev.Time.Format("02/01/2006 15:04")
		}
		desc := ev.Description
		if desc == "" {
			desc = ev.Status
		}
		timeline = append(timeline, fmt.Sprintf("• %s — %s — %s", ts, desc, ev.Location))
	}

	timelineText := "Chưa có thông tin"
	if len(timeline) > 0 {
		if len(timeline) > 5 {
			timeline = timeline[len(timeline)-5:]
		}
		timelineText = strings.Join(timeline, "\n")
	}

	return fmt.Sprintf(
		"🔎 <b>MVĐ:</b> <code>%s</code>\n"+
			"📊 <b>Trạng thái:</b> %s\n\n"+
			"📜 <b>Timeline:</b>\n%s",
		esc(code), esc(status), timelineText,
	)
}

// RenderPhoneResults formats the outcome of a batch phone check.
func RenderPhoneResults(results []PhoneResult) string {
	var b strings.Builder
	b.WriteString("📱 <u><b>KẾT QUẢ CHECK SĐT</b></u>\n\n")
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "• <code>%s</code> — ⚠️ Lỗi, thử lại sau\n", esc(r.Phone))
		case r.Locked:
			fmt.Fprintf(&b, "• <code>%s</code> — 🔒 Bị khóa / hạn chế\n", esc(r.Phone))
		default:
			fmt.Fprintf(&b, "• <code>%s</code> — ✅ Bình thường\n", esc(r.Phone))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
