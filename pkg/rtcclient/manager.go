package rtcclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the connection lifecycle state for one room session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRetrying
	StateConnected
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRetrying:
		return "retrying"
	case StateConnected:
		return "connected"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

const (
	// DefaultRetryBound is how many times a failed token fetch is retried
	// before falling back (not counting the initial attempt).
	DefaultRetryBound = 2
	// DefaultRetryDelay is the fixed wait between attempts.
	DefaultRetryDelay = time.Second
)

// Session is the live state for one room attempt. A room change replaces the
// whole session; it is never mutated across rooms.
type Session struct {
	RoomID     string
	Identity   string
	Endpoint   string
	Credential string
	RetryCount int
}

// Manager owns the connection lifecycle for one room at a time: token
// acquisition with bounded retry, fallback when the provider is unavailable,
// and full teardown on leave or room change. Sessions for different rooms
// never coexist under one manager.
type Manager struct {
	tokens     TokenClient
	logger     *zap.Logger
	retryBound int
	retryDelay time.Duration

	mu     sync.Mutex
	state  State
	sess   *Session
	gen    uint64
	cancel context.CancelFunc
}

// NewManager creates a connection manager with the default retry policy.
func NewManager(tokens TokenClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		tokens:     tokens,
		logger:     logger,
		retryBound: DefaultRetryBound,
		retryDelay: DefaultRetryDelay,
		state:      StateIdle,
	}
}

// SetRetryPolicy overrides the retry bound and delay.
func (m *Manager) SetRetryPolicy(bound int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bound >= 0 {
		m.retryBound = bound
	}
	if delay > 0 {
		m.retryDelay = delay
	}
}

// Join acquires a credential for (roomID, identity) and transitions to
// Connected, or to Fallback after the provider proves unavailable. Any prior
// session is torn down first, so a second Join supersedes an unresolved one.
// It blocks until the attempt resolves; the returned state is the outcome.
func (m *Manager) Join(ctx context.Context, roomID, identity string) (State, error) {
	m.mu.Lock()
	m.teardownLocked()
	m.gen++
	myGen := m.gen
	joinCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = StateAcquiring
	m.sess = &Session{RoomID: roomID, Identity: identity}
	retryBound := m.retryBound
	retryDelay := m.retryDelay
	m.mu.Unlock()

	defer cancel()

	for attempt := 0; ; attempt++ {
		if joinCtx.Err() != nil {
			return m.currentState(), ErrJoinCancelled
		}

		cred, err := m.tokens.FetchToken(joinCtx, roomID, identity)
		if err == nil {
			return m.commit(myGen, StateConnected, func(s *Session) {
				s.Endpoint = cred.Endpoint
				s.Credential = cred.Credential
			}), nil
		}
		if joinCtx.Err() != nil {
			return m.currentState(), ErrJoinCancelled
		}
		if err == ErrProviderNotConfigured {
			m.logger.Info("provider not configured, using fallback presence",
				zap.String("room", roomID))
			return m.commit(myGen, StateFallback, nil), nil
		}
		if attempt >= retryBound {
			m.logger.Warn("token retries exhausted, using fallback presence",
				zap.String("room", roomID), zap.Int("attempts", attempt+1), zap.Error(err))
			return m.commit(myGen, StateFallback, nil), nil
		}

		m.logger.Warn("token fetch failed, retrying",
			zap.String("room", roomID), zap.Int("attempt", attempt+1), zap.Error(err))
		m.commit(myGen, StateRetrying, func(s *Session) { s.RetryCount++ })

		select {
		case <-joinCtx.Done():
			return m.currentState(), ErrJoinCancelled
		case <-time.After(retryDelay):
		}
		m.commit(myGen, StateAcquiring, nil)
	}
}

// Leave tears down the current session. Idempotent and safe in any state;
// an in-flight join observes the cancellation before its next attempt.
func (m *Manager) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session, or nil when idle.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	s := *m.sess
	return &s
}

// SuppressTransportError filters errors from the real-time transport.
// Benign kinds (known SDK races) are logged and swallowed; anything else is
// returned for the caller to surface.
func (m *Manager) SuppressTransportError(err error) error {
	if err == nil {
		return nil
	}
	if kind := ClassifyTransportError(err); kind.Benign() {
		m.logger.Debug("suppressed benign transport error",
			zap.String("kind", kind.String()), zap.Error(err))
		return nil
	}
	return err
}

// teardownLocked invalidates the in-flight join and clears all credential
// state so a stale render cannot reuse it. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.sess = nil
	m.state = StateIdle
}

// commit applies a transition only if the join that requested it is still
// the current one; a superseded join commits nothing.
func (m *Manager) commit(gen uint64, state State, update func(*Session)) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.sess == nil {
		return m.state
	}
	if update != nil {
		update(m.sess)
	}
	if state == StateFallback {
		m.sess.Endpoint = ""
		m.sess.Credential = ""
	}
	m.state = state
	return m.state
}

func (m *Manager) currentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
