package models

import "time"

// User is one row of the payment roster. Accounts are created by the sibling
// voucher bot; this service only reads them and mutates the punishment fields.
type User struct {
	TelegramID   int64      `json:"telegram_id"`
	Username     string     `json:"username"`
	Balance      int64      `json:"balance"`
	Status       string     `json:"status"`
	StrikeCount  int        `json:"strike_count"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
}

// Active reports whether the account was activated at the voucher bot.
func (u *User) Active() bool {
	return u.Status == "active"
}

// LockedOut reports whether a lockout is still in force at now.
func (u *User) LockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}
