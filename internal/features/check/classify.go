package check

import (
	"regexp"
	"strings"
)

// Kind is what one submitted line asks the bot to check.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindCookie  Kind = "cookie"
	KindSPX     Kind = "spx"
	KindGHN     Kind = "ghn"
	KindPhone   Kind = "phone"
)

var (
	spxRe   = regexp.MustCompile(`^SPXVN[0-9A-Z]+$`)
	ghnRe   = regexp.MustCompile(`^GHN[0-9A-Z]{6,}$`)
	phoneRe = regexp.MustCompile(`^(0\d{9,10}|84\d{9,10})$`)
)

// Classify decides what a single trimmed line is. Cookies win on substring
// because users paste whole cookie jars around the SPC_ST token.
func Classify(line string) Kind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return KindUnknown
	case strings.Contains(line, "SPC_ST="):
		return KindCookie
	case spxRe.MatchString(line):
		return KindSPX
	case ghnRe.MatchString(line):
		return KindGHN
	case phoneRe.MatchString(strings.ReplaceAll(line, " ", "")):
		return KindPhone
	default:
		return KindUnknown
	}
}

// SplitLines breaks a message into trimmed non-empty lines, preserving order.
func SplitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// NormalizePhone converts a local 0-prefixed number to its 84-prefixed form.
// Returns "" for anything it does not recognize.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	switch {
	case strings.HasPrefix(phone, "0"):
		return "84" + phone[1:]
	case strings.HasPrefix(phone, "84"):
		return phone
	default:
		return ""
	}
}
