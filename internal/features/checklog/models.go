package checklog

import "time"

// CheckEntry is one row of the append-only check log. Values are masked before
// they get here; the raw credential is never persisted.
type CheckEntry struct {
	Time         time.Time
	TelegramID   int64
	Username     string
	MaskedValue  string
	BalanceAfter int64
	Note         string
}

// SpamEntry records one rate-limit breach with the resulting punishment.
type SpamEntry struct {
	Time        time.Time
	TelegramID  int64
	Username    string
	CountMinute int
	Strike      int
	Band        string
}

// QREntry records one QR-session lifecycle event.
type QREntry struct {
	Time       time.Time
	TelegramID int64
	SessionID  string
	Event      string
}

// MaskValue shortens a credential for logging: short values pass through,
// longer ones keep the first 10 and last 6 characters.
func MaskValue(val string) string {
	if len(val) <= 18 {
		return val
	}
	return val[:10] + "..." + val[len(val)-6:]
}
