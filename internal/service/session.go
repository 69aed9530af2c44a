package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSessionIdleTTL  = 30 * time.Minute
	defaultJanitorInterval = time.Minute
)

// Session is one conversation. Writes within a session are sequential and
// never interleave with its reads, so a reader in the same session always
// sees a learn either fully applied or not at all.
type Session struct {
	id string
	g  *Gateway

	mu       sync.RWMutex
	lastUsed time.Time
	touchMu  sync.Mutex
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) touch() {
	s.touchMu.Lock()
	s.lastUsed = time.Now()
	s.touchMu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.touchMu.Lock()
	defer s.touchMu.Unlock()
	return s.lastUsed
}

// Source is the provenance tag given to candidates learned without one.
func (s *Session) Source() string {
	return domain.UserSource(s.id)
}

func (s *Session) Learn(ctx context.Context, c Candidate) (*LearnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if c.Source == "" {
		c.Source = s.Source()
	}
	return s.g.Learn(ctx, c)
}

func (s *Session) Retract(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.g.Retract(ctx, id)
}

func (s *Session) AskFact(ctx context.Context, subject, relation string) ([]domain.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.touch()
	return s.g.AskFact(ctx, subject, relation)
}

func (s *Session) AskComparative(ctx context.Context, a, b, relation string) (*Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.touch()
	return s.g.AskComparative(ctx, a, b, relation)
}

func (s *Session) AskOpinion(ctx context.Context, topic string) ([]Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.touch()
	return s.g.AskOpinion(ctx, topic)
}

func (s *Session) Derive(ctx context.Context, subject, relation string) (*NumericFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.touch()
	return s.g.Derive(ctx, subject, relation)
}

func (s *Session) Members(ctx context.Context, class string) ([]domain.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.touch()
	return s.g.Members(ctx, class)
}

type sessionRegistry struct {
	g        *Gateway
	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionRegistry(g *Gateway) *sessionRegistry {
	return &sessionRegistry{g: g, sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{id: id, g: r.g, lastUsed: time.Now()}
		r.sessions[id] = s
		r.g.metrics.SetActiveSessions(len(r.sessions))
	}
	return s
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// evictIdle drops sessions unused since before cutoff. Sessions with a call
// in flight stay registered.
func (r *sessionRegistry) evictIdle(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if !s.idleSince().Before(cutoff) {
			continue
		}
		if !s.mu.TryLock() {
			continue
		}
		delete(r.sessions, id)
		s.mu.Unlock()
		n++
	}
	if n > 0 {
		r.g.metrics.SetActiveSessions(len(r.sessions))
	}
	return n
}

// Session returns the session with the given id, creating it on first use.
// An empty id yields the anonymous session.
func (g *Gateway) Session(id string) *Session {
	id = domain.NormalizeTerm(id)
	if id == "" {
		id = "anonymous"
	}
	return g.sessions.get(id)
}

// ActiveSessions reports how many sessions are tracked.
func (g *Gateway) ActiveSessions() int {
	return g.sessions.count()
}

// SessionJanitor periodically forgets idle sessions.
type SessionJanitor struct {
	gateway *Gateway
	logger  *zap.Logger

	ttl      time.Duration
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSessionJanitor(g *Gateway, logger *zap.Logger) *SessionJanitor {
	return &SessionJanitor{
		gateway:  g,
		logger:   logger,
		ttl:      defaultSessionIdleTTL,
		interval: defaultJanitorInterval,
		stopCh:   make(chan struct{}),
	}
}

func (j *SessionJanitor) SetTTL(d time.Duration) {
	if d > 0 {
		j.ttl = d
	}
}

func (j *SessionJanitor) SetInterval(d time.Duration) {
	if d > 0 {
		j.interval = d
	}
}

// Start runs the janitor on a periodic schedule in a background goroutine.
func (j *SessionJanitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logger.Info("session janitor started",
			zap.Duration("interval", j.interval),
			zap.Duration("ttl", j.ttl))

		for {
			select {
			case <-ticker.C:
				j.run()
			case <-j.stopCh:
				j.logger.Info("session janitor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the janitor.
func (j *SessionJanitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *SessionJanitor) run() {
	if n := j.gateway.sessions.evictIdle(time.Now().Add(-j.ttl)); n > 0 {
		j.logger.Info("evicted idle sessions", zap.Int("count", n))
	}
}
