package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/cart"
	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Config tunes session lifetime.
type Config struct {
	// TTL is how long an idle session is kept.
	TTL time.Duration
	// PaymentTimeout bounds how long a hosted payment is awaited.
	PaymentTimeout time.Duration
}

// Manager owns all live sessions.
type Manager struct {
	cfg      Config
	checkout *checkout.Service
	prices   *pricing.Table
	lg       *zap.Logger
	now      func() time.Time

	// base bounds background payment waits.
	base context.Context
	wg   sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Background work stops when ctx is done.
func NewManager(ctx context.Context, cfg Config, svc *checkout.Service, prices *pricing.Table, lg *zap.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 30 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		checkout: svc,
		prices:   prices,
		lg:       lg,
		now:      time.Now,
		base:     ctx,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		mgr:       m,
		builder:   drink.NewBuilder(),
		cart:      cart.New(),
		checkout:  m.checkout.NewOrchestrator(),
		lastSeen:  now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id and marks it as active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a
// checkout in flight are kept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.TTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.idleSince().After(cutoff) || s.checkout.State().Busy() {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	return n
}

// Run sweeps expired sessions until ctx is done, then waits for background
// payment waits to return.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.TTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return nil
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.lg.Debug("Expired sessions", zap.Int("count", n))
			}
		}
	}
}

// await waits for the hosted payment of s in the background.
func (m *Manager) await(s *Session) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.base, m.cfg.PaymentTimeout)
		defer cancel()

		lg := s.logger()
		res, err := s.checkout.Await(ctx)
		switch {
		case err == nil:
			s.finish()
			lg.Info("Payment completed", zap.String("code", res.OrderCode))
		case errors.Is(err, checkout.ErrPaymentCancelled):
			lg.Info("Payment cancelled")
		default:
			lg.Warn("Payment failed", zap.Error(err))
		}
	}()
}
