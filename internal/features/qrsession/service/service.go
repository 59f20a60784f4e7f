package service

import (
	"context"
	"sync"
	"time"

	"ordercheck-bot-backend/internal/common/errors"
	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/features/checklog"
	"ordercheck-bot-backend/internal/features/qrsession/models"
	"ordercheck-bot-backend/internal/platform/qrlogin"
)

// RemoteClient is the slice of the QR microservice the session machine needs.
type RemoteClient interface {
	Create(ctx context.Context) (*qrlogin.CreateResult, error)
	GetStatus(ctx context.Context, sessionID string) (*qrlogin.Status, error)
	Exchange(ctx context.Context, sessionID string) (*qrlogin.ExchangeResult, error)
}

// Ledger is the slice of the external balance ledger used for QR billing.
type Ledger interface {
	Enabled() bool
	Deduct(ctx context.Context, telegramID int64, amount int64, reason string) error
}

// Notifier receives terminal-state callbacks so the bot can message the user.
type Notifier interface {
	QRDelivered(session *models.Session)
	QRExpired(session *models.Session)
}

// Service owns the in-memory session table and the per-session watchers.
// One coarse lock guards the table; sessions do not survive a restart.
type Service struct {
	remote   RemoteClient
	ledger   Ledger
	logs     checklog.Repository
	notifier Notifier

	pollInterval time.Duration
	sessionTTL   time.Duration
	price        int64

	mu       sync.Mutex
	sessions map[string]*models.Session

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(remote RemoteClient, ledger Ledger, logs checklog.Repository, pollInterval, sessionTTL time.Duration, price int64) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		remote:       remote,
		ledger:       ledger,
		logs:         logs,
		pollInterval: pollInterval,
		sessionTTL:   sessionTTL,
		price:        price,
		sessions:     make(map[string]*models.Session),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetNotifier wires the delivery callbacks. Must be called before Create.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Create opens a remote session, registers it as waiting and starts its
// watcher. The QR image is returned for the bot to send as a photo.
func (s *Service) Create(ctx context.Context, telegramID, chatID int64) (*models.Session, []byte, error) {
	created, err := s.remote.Create(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeUpstream, "QR session create failed")
	}

	sess := &models.Session{
		ID:         created.SessionID,
		TelegramID: telegramID,
		ChatID:     chatID,
		State:      models.StateWaiting,
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logEvent(sess, "created")

	s.wg.Add(1)
	go s.watch(sess.ID)

	return sess, created.QRImage, nil
}

// Get returns the live session or nil.
func (s *Service) Get(sessionID string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// Cancel removes a session on explicit user action. The watcher notices the
// removal on its next tick and exits quietly.
func (s *Service) Cancel(sessionID string, telegramID int64) bool {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.TelegramID != telegramID || sess.State.Terminal() {
		s.mu.Unlock()
		return false
	}
	sess.State = models.StateCancelled
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.logEvent(sess, "cancelled")
	return true
}

// ResolveCookie is the user-triggered "check now" path. It enforces the
// session TTL, classifies the current remote status and, when the session is
// scanned, performs the cookie exchange. For a session already done it
// returns the cached cookie without touching the network.
func (s *Service) ResolveCookie(ctx context.Context, sessionID string, telegramID int64) (string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.TelegramID != telegramID {
		s.mu.Unlock()
		return "", errors.New(errors.ErrCodeSessionNotFound, "QR session not found")
	}
	if sess.State == models.StateDone && sess.Cookie != "" {
		cookie := sess.Cookie
		s.mu.Unlock()
		return cookie, nil
	}
	if s.expired(sess) {
		sess.State = models.StateExpired
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		s.logEvent(sess, "expired")
		return "", errors.New(errors.ErrCodeSessionExpired, "QR session expired")
	}
	s.mu.Unlock()

	status, err := s.remote.GetStatus(ctx, sessionID)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUpstream, "QR status poll failed")
	}
	if !models.ClassifyScanned(status.Raw, status.Scanned) {
		return "", errors.New(errors.ErrCodeSessionState, "QR code not scanned yet")
	}

	return s.exchange(ctx, sessionID)
}

// exchange performs scanned -> done. The decision to call the remote exchange
// is not atomic across the watcher and the foreground path, but the cached
// cookie check keeps the operation idempotent from the caller's view.
func (s *Service) exchange(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return "", errors.New(errors.ErrCodeSessionNotFound, "QR session not found")
	}
	if sess.Cookie != "" {
		cookie := sess.Cookie
		s.mu.Unlock()
		return cookie, nil
	}
	if sess.State == models.StateWaiting {
		sess.State = models.StateScanned
	}
	s.mu.Unlock()

	result, err := s.remote.Exchange(ctx, sessionID)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUpstream, "cookie exchange failed")
	}

	s.mu.Lock()
	if sess.Cookie == "" {
		sess.Cookie = result.Cookie
		sess.Account = result.Account
		sess.State = models.StateDone
	}
	cookie := sess.Cookie
	shouldCharge := !sess.Paid && s.price > 0 && s.ledger != nil && s.ledger.Enabled()
	if shouldCharge {
		sess.Paid = true
	}
	s.mu.Unlock()

	s.logEvent(sess, "done")

	if shouldCharge {
		if err := s.ledger.Deduct(ctx, sess.TelegramID, s.price, "qr_login"); err != nil {
			logger.Warn().Int64("user", sess.TelegramID).Err(err).Msg("QR billing deduction failed")
		}
	}

	return cookie, nil
}

// watch polls one session until it resolves, expires or disappears.
func (s *Service) watch(sessionID string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		sess, ok := s.sessions[sessionID]
		if !ok || sess.State.Terminal() {
			s.mu.Unlock()
			return
		}
		if s.expired(sess) {
			sess.State = models.StateExpired
			delete(s.sessions, sessionID)
			s.mu.Unlock()
			s.logEvent(sess, "expired")
			if s.notifier != nil {
				s.notifier.QRExpired(sess)
			}
			return
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(s.ctx, s.pollInterval*2)
		status, err := s.remote.GetStatus(ctx, sessionID)
		cancel()
		if err != nil {
			logger.Debug().Str("session", sessionID).Err(err).Msg("QR status poll failed")
			continue
		}
		if !models.ClassifyScanned(status.Raw, status.Scanned) {
			continue
		}

		ctx, cancel = context.WithTimeout(s.ctx, 15*time.Second)
		_, err = s.exchange(ctx, sessionID)
		cancel()
		if err != nil {
			logger.Warn().Str("session", sessionID).Err(err).Msg("cookie exchange failed")
			continue
		}

		s.mu.Lock()
		done := s.sessions[sessionID]
		s.mu.Unlock()
		if done != nil && s.notifier != nil {
			s.notifier.QRDelivered(done)
		}
		return
	}
}

// Start launches the pruner that drops terminal and overdue sessions.
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
	// Done sessions are kept for one extra TTL so the cached cookie stays
	// resolvable; everything else past its lifetime goes.
	var expired []*models.Session

	s.mu.Lock()
	for id, sess := range s.sessions {
		age := s.now().Sub(sess.CreatedAt)
		switch {
		case sess.State == models.StateDone && age > 2*s.sessionTTL:
			delete(s.sessions, id)
		case sess.State != models.StateDone && s.expired(sess):
			sess.State = models.StateExpired
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.logEvent(sess, "expired")
		if s.notifier != nil {
			s.notifier.QRExpired(sess)
		}
	}
}

func (s *Service) expired(sess *models.Session) bool {
	return s.now().Sub(sess.CreatedAt) > s.sessionTTL
}

func (s *Service) logEvent(sess *models.Session, event string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.logs.AppendQR(ctx, checklog.QREntry{
		Time:       s.now(),
		TelegramID: sess.TelegramID,
		SessionID:  sess.ID,
		Event:      event,
	}); err != nil {
		logger.Debug().Str("session", sess.ID).Err(err).Msg("qr log append failed")
	}
}
