package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/features/user/repository"
	"ordercheck-bot-backend/internal/platform/redis"
	"ordercheck-bot-backend/internal/platform/telegram"
)

const broadcastCooldownKey = "broadcast:cooldown"

// Broadcaster fans one admin message out to every registered user. The redis
// cooldown key survives restarts, so a crash mid-broadcast cannot be abused
// to re-send immediately.
type Broadcaster struct {
	tg       *telegram.Client
	users    repository.UserRepository
	rdb      *redis.Client
	cooldown time.Duration
}

func NewBroadcaster(tg *telegram.Client, users repository.UserRepository, rdb *redis.Client, cooldown time.Duration) *Broadcaster {
	return &Broadcaster{tg: tg, users: users, rdb: rdb, cooldown: cooldown}
}

// Send delivers text to every roster user. Returns how many sends succeeded.
// ErrCooldown is reported as a plain error string the handler relays verbatim.
func (b *Broadcaster) Send(ctx context.Context, text string) (int, error) {
	broadcastID := uuid.NewString()

	acquired, err := b.rdb.SetNXTTL(ctx, broadcastCooldownKey, broadcastID, b.cooldown)
	if err != nil {
		return 0, fmt.Errorf("broadcast cooldown check failed: %w", err)
	}
	if !acquired {
		return 0, fmt.Errorf("broadcast cooldown active, try again later")
	}

	ids, err := b.users.ListTelegramIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("roster load failed: %w", err)
	}

	logger.Info().Str("broadcast_id", broadcastID).Int("recipients", len(ids)).Msg("Broadcast started")

	sent := 0
	for _, id := range ids {
		if err := b.tg.SendMessage(id, text, nil); err != nil {
			logger.Debug().Err(err).Int64("telegram_id", id).Msg("Broadcast send failed")
			continue
		}
		sent++
		// Stay under Telegram's global send rate.
		time.Sleep(50 * time.Millisecond)
	}

	logger.Info().Str("broadcast_id", broadcastID).Int("sent", sent).Msg("Broadcast finished")
	return sent, nil
}
