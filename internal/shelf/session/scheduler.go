package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// scheduler holds the single auto-refresh timer. Each arming gets a new
// sequence number so a timer that was replaced does nothing when it fires.
type scheduler struct {
	mu          sync.Mutex
	timer       *time.Timer
	reservation *rate.Reservation
	limiter     *rate.Limiter
	seq         uint64
	closed      bool
	running     sync.WaitGroup
}

// stopLocked cancels the pending timer and gives its rate token back.
func (s *scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.reservation != nil {
		s.reservation.Cancel()
		s.reservation = nil
	}
	s.seq++
}

func (s *scheduler) close() {
	s.mu.Lock()
	s.stopLocked()
	s.closed = true
	s.mu.Unlock()

	s.running.Wait()
}

// rearm cancels any pending refresh and, while the session is
// authenticated, arms one for expiresAt - now - RefreshBuffer. Runs are spaced at least
// MinRefreshInterval apart.
func (m *Manager) rearm() {
	m.mu.RLock()
	user, tokens, gen := m.user, m.tokens, m.generation
	m.mu.RUnlock()

	s := &m.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	// expired pairs are refreshed on demand by CheckAuthStatus and
	// GetValidToken, not by the timer
	if s.closed || user == nil || tokens == nil || tokens.RefreshToken == "" || tokens.Expired(m.now()) {
		return
	}

	delay := tokens.ExpiresAt.Sub(m.now()) - m.refreshBuffer
	if delay < 0 {
		delay = 0
	}

	r := s.limiter.Reserve()
	if wait := r.Delay(); wait > delay {
		delay = wait
	}
	s.reservation = r

	seq := s.seq
	s.timer = time.AfterFunc(delay, func() { m.fire(seq, gen) })
	m.logger.Debug("auto refresh armed", "in", delay.String())
}

func (m *Manager) fire(seq, gen uint64) {
	s := &m.sched
	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	// the token is spent once the timer fires
	s.timer, s.reservation = nil, nil
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	if m.currentGeneration() != gen {
		m.logger.Debug("auto refresh skipped, session changed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	m.logger.Debug("auto refresh")
	if !m.RefreshAuth(ctx) {
		m.logger.Info("auto refresh ended the session")
	}
}
