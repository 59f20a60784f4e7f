package ratelimit

import (
	"context"
	"sync"
	"time"

	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/features/checklog"
	"ordercheck-bot-backend/internal/features/user/models"
	"ordercheck-bot-backend/internal/features/user/repository"
)

// keepMinutes bounds the per-user window map; anything older is noise.
const keepMinutes = 3

// Ladder holds the escalating lockout durations by strike count.
type Ladder struct {
	Band1 time.Duration // strike 1
	Band2 time.Duration // strike 2
	Band3 time.Duration // strike 3 and above
}

func (l Ladder) duration(strike int) (time.Duration, string) {
	switch {
	case strike <= 1:
		return l.Band1, "1h"
	case strike == 2:
		return l.Band2, "1d"
	default:
		return l.Band3, "7d"
	}
}

// Breach describes one rate-limit violation and the punishment issued for it.
type Breach struct {
	Strike      int
	Until       time.Time
	CountMinute int
}

// Service tracks per-user per-minute request counts in memory and escalates
// persisted strikes on breach. One coarse lock guards the window map; the
// critical sections are map reads and writes only.
type Service struct {
	users  repository.UserRepository
	logs   checklog.Repository
	limit  int
	ladder Ladder

	mu      sync.Mutex
	windows map[int64]map[string]int

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(users repository.UserRepository, logs checklog.Repository, limitPerMinute int, ladder Ladder) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		users:   users,
		logs:    logs,
		limit:   limitPerMinute,
		ladder:  ladder,
		windows: make(map[int64]map[string]int),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// CheckLockout must run before any counting. An expired lockout is cleared,
// and clearing resets the strike counter too: serving out a ban earns a clean
// slate.
func (s *Service) CheckLockout(ctx context.Context, u *models.User) (bool, time.Time) {
	if u.LockoutUntil == nil {
		return false, time.Time{}
	}

	now := s.now()
	if now.Before(*u.LockoutUntil) {
		return true, *u.LockoutUntil
	}

	if err := s.users.ClearPunishment(ctx, u.TelegramID); err != nil {
		logger.Warn().Int64("user", u.TelegramID).Err(err).Msg("failed to clear expired lockout")
	}
	u.StrikeCount = 0
	u.LockoutUntil = nil
	return false, time.Time{}
}

// Allow counts one request in the current minute. On breach it issues exactly
// one new strike, computes the lockout from the new strike count, persists
// both, and reports the punishment. Persistence failures are swallowed: the
// user still experiences the refusal even when the strike fails to stick.
func (s *Service) Allow(ctx context.Context, u *models.User) (*Breach, bool) {
	now := s.now()
	minuteKey := now.Format("2006-01-02 15:04")

	s.mu.Lock()
	window, ok := s.windows[u.TelegramID]
	if !ok {
		window = make(map[string]int)
		s.windows[u.TelegramID] = window
	}
	window[minuteKey]++
	count := window[minuteKey]
	s.mu.Unlock()

	if count <= s.limit {
		return nil, true
	}

	strike := u.StrikeCount + 1
	dur, bandText := s.ladder.duration(strike)
	until := now.Add(dur)

	if err := s.users.SetPunishment(ctx, u.TelegramID, strike, until); err != nil {
		logger.Warn().Int64("user", u.TelegramID).Err(err).Msg("failed to persist strike")
	} else {
		u.StrikeCount = strike
		u.LockoutUntil = &until
	}

	if err := s.logs.AppendSpam(ctx, checklog.SpamEntry{
		Time:        now,
		TelegramID:  u.TelegramID,
		Username:    u.Username,
		CountMinute: count,
		Strike:      strike,
		Band:        bandText,
	}); err != nil {
		logger.Warn().Int64("user", u.TelegramID).Err(err).Msg("failed to append spam log")
	}

	return &Breach{Strike: strike, Until: until, CountMinute: count}, false
}

// Start launches the window pruner.
func (s *Service) Start(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.prune()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) prune() {
	cutoff := s.now().Add(-keepMinutes * time.Minute).Format("2006-01-02 15:04")

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, window := range s.windows {
		for key := range window {
			if key < cutoff {
				delete(window, key)
			}
		}
		if len(window) == 0 {
			delete(s.windows, id)
		}
	}
}
