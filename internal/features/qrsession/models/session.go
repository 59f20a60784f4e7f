package models

import "time"

// State is the lifecycle position of one QR-login session.
type State string

const (
	StateWaiting   State = "waiting"
	StateScanned   State = "scanned"
	StateDone      State = "done"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateDone || s == StateExpired || s == StateCancelled
}

// Session is one in-flight QR login. Sessions live only in process memory;
// a restart abandons them all.
type Session struct {
	ID         string
	TelegramID int64
	ChatID     int64
	State      State
	CreatedAt  time.Time

	// Set once the exchange succeeds.
	Cookie  string
	Account string
	Paid    bool
}

// pendingStatuses are the upstream's known ways of saying "nothing happened yet".
var pendingStatuses = map[string]struct{}{
	"":          {},
	"waiting":   {},
	"pending":   {},
	"new":       {},
	"created":   {},
	"unscanned": {},
}

// positiveStatuses are the upstream's known ways of saying "scanned".
var positiveStatuses = map[string]struct{}{
	"scanned":   {},
	"confirmed": {},
	"ok":        {},
	"success":   {},
	"done":      {},
}

// ClassifyScanned decides whether a status report means the code was scanned.
// The upstream's vocabulary is inconsistent, so the policy is permissive: an
// explicit flag wins, a known-positive string wins, and any non-empty status
// outside the known-pending set also counts as scanned rather than risking a
// session stuck on an undocumented variant.
func ClassifyScanned(raw string, explicitFlag bool) bool {
	if explicitFlag {
		return true
	}
	status := normalize(raw)
	if _, ok := positiveStatuses[status]; ok {
		return true
	}
	if _, ok := pendingStatuses[status]; ok {
		return false
	}
	return true
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
