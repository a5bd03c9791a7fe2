package wakelock

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"veriflow/internal/config"
	"veriflow/internal/logging"
)

// State is the externally observable wake lock state.
type State string

const (
	// StateUnsupported means the platform offers no wake lock at all.
	StateUnsupported State = "unsupported"
	// StateIdle means no lease is held and none is being retried.
	StateIdle State = "idle"
	// StateActive means a platform lease is currently held.
	StateActive State = "active"
	// StateDeniedPendingGesture means the platform refused the lease and a
	// retry is armed for the next user gesture.
	StateDeniedPendingGesture State = "denied_pending_gesture"
)

// ErrNeedsGesture is returned by a Platform when the lease request was
// refused and may succeed when repeated inside a user gesture.
var ErrNeedsGesture = errors.New("wake lock requires user gesture")

// ErrUnsupported is returned by Request when the platform has no wake lock.
// Callers treat it as a benign degradation, not a failure of the step.
var ErrUnsupported = errors.New("wake lock unsupported")

// Lease is a held platform wake lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Platform abstracts the host wake lock facility.
type Platform interface {
	Supported() bool
	Acquire(ctx context.Context) (Lease, error)
}

// Manager tracks whether a wake lock is wanted and reconciles that desire
// against the platform. All methods are safe for concurrent use.
type Manager struct {
	cfg      *config.Config
	logger   *slog.Logger
	platform Platform

	mu     sync.Mutex
	state  State
	lease  Lease
	wanted bool
}

// NewManager builds a manager over the given platform.
func NewManager(cfg *config.Config, logger *slog.Logger, platform Platform) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "wakelock"),
		platform: platform,
		state:    StateIdle,
	}
	if platform == nil || !platform.Supported() {
		m.state = StateUnsupported
	}
	return m
}

// State returns the current wake lock state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Request marks the wake lock as wanted and attempts to acquire a lease.
// On an unsupported platform it reports ErrUnsupported without side effects;
// a permission denial is recorded for a later gesture retry rather than
// surfaced as an error. Requesting an already held lock does nothing.
func (m *Manager) Request(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUnsupported {
		return ErrUnsupported
	}
	m.wanted = true
	if m.state == StateActive {
		return nil
	}
	return m.acquireLocked(ctx)
}

// Release drops the wake lock and clears the desired hold. Releasing an
// idle manager does nothing.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wanted = false
	if m.state == StateUnsupported {
		return nil
	}
	return m.releaseLocked(ctx)
}

// SetHold reconciles the wake lock against whether the current step needs it.
// An unsupported platform degrades silently so step transitions never fail on
// a missing wake lock.
func (m *Manager) SetHold(ctx context.Context, wanted bool) error {
	if wanted {
		if err := m.Request(ctx); err != nil && !errors.Is(err, ErrUnsupported) {
			return err
		}
		return nil
	}
	return m.Release(ctx)
}

// HandleRevoked records an OS-initiated lease loss. The hold stays wanted so
// a later visibility change or gesture can reacquire.
func (m *Manager) HandleRevoked() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return
	}
	m.lease = nil
	m.state = StateIdle
	m.logger.Debug("wake lock revoked by platform",
		logging.String(logging.FieldEventType, "wakelock_revoked"),
	)
}

// OnUserGesture retries a denied acquisition inside a user gesture, at most
// once per denial. It does nothing unless a denial is pending and gesture
// retries are enabled.
func (m *Manager) OnUserGesture(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDeniedPendingGesture || !m.wanted {
		return nil
	}
	if m.cfg != nil && !m.cfg.WakeLock.RetryOnGesture {
		return nil
	}

	err := m.acquireLocked(ctx)
	if m.state == StateDeniedPendingGesture {
		// second denial disarms the retry; the hold stays wanted so a
		// visibility change can still reacquire
		m.state = StateIdle
	}
	return err
}

// HandleVisibility reacts to the app being hidden or shown. Hiding releases
// the lease without clearing the desired hold; showing reacquires when the
// hold is still wanted.
func (m *Manager) HandleVisibility(ctx context.Context, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUnsupported {
		return nil
	}

	if !visible {
		if m.state != StateActive {
			return nil
		}
		wanted := m.wanted
		if err := m.releaseLocked(ctx); err != nil {
			return err
		}
		m.wanted = wanted
		return nil
	}

	if !m.wanted || m.state == StateActive {
		return nil
	}
	if m.cfg != nil && !m.cfg.WakeLock.ReacquireOnShow {
		return nil
	}
	return m.acquireLocked(ctx)
}

func (m *Manager) acquireLocked(ctx context.Context) error {
	lease, err := m.platform.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrNeedsGesture) {
			m.state = StateDeniedPendingGesture
			m.logger.Debug("wake lock denied, awaiting gesture",
				logging.String(logging.FieldEventType, "wakelock_denied"),
			)
			return nil
		}
		m.state = StateIdle
		return err
	}
	m.lease = lease
	m.state = StateActive
	m.logger.Debug("wake lock acquired",
		logging.String(logging.FieldEventType, "wakelock_acquired"),
	)
	return nil
}

func (m *Manager) releaseLocked(ctx context.Context) error {
	m.wanted = false
	lease := m.lease
	m.lease = nil
	m.state = StateIdle
	if lease == nil {
		return nil
	}
	if err := lease.Release(ctx); err != nil {
		return err
	}
	m.logger.Debug("wake lock released",
		logging.String(logging.FieldEventType, "wakelock_released"),
	)
	return nil
}
