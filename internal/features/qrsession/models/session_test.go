package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminal(t *testing.T) {
	assert.False(t, StateWaiting.Terminal())
	assert.False(t, StateScanned.Terminal())
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateExpired.Terminal())
	assert.True(t, StateCancelled.Terminal())
}

func TestClassifyScanned(t *testing.T) {
	cases := []struct {
		raw  string
		flag bool
		want bool
	}{
		{"", false, false},
		{"waiting", false, false},
		{"PENDING", false, false},
		{" new ", false, false},
		{"unscanned", false, false},

		{"scanned", false, true},
		{"CONFIRMED", false, true},
		{"success", false, true},
		{"ok", false, true},

		// Undocumented vendor statuses count as scanned rather than leaving
		// the session stuck.
		{"WEIRD_STATE_X", false, true},
		{"authorized", false, true},

		// The explicit flag wins even over a pending status string.
		{"waiting", true, true},
		{"", true, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyScanned(tc.raw, tc.flag),
			"raw=%q flag=%v", tc.raw, tc.flag)
	}
}
