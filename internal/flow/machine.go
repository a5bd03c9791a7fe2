package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"log/slog"

	"veriflow/internal/identity"
	"veriflow/internal/logging"
)

// ErrIllegalTransition is returned when a step change violates the
// transition table or the target's precondition. The call is rejected; the
// machine stays on its current step.
var ErrIllegalTransition = errors.New("illegal transition")

// ErrAtRoot is returned by GoBack when the history holds only the root step.
var ErrAtRoot = errors.New("at root step")

// RecordSource yields the current accumulated identity record for
// precondition checks.
type RecordSource interface {
	Snapshot() identity.Record
}

// Navigator mirrors logical navigation onto the host platform's history
// stack. Every Advance pushes exactly one entry and every GoBack pops exactly
// one, keeping the two stacks the same depth at all times.
type Navigator interface {
	PushEntry(step Step)
	PopEntry()
}

// LockController receives the wake-lock requirement of the active step.
type LockController interface {
	SetHold(ctx context.Context, wanted bool) error
}

// Machine is the workflow state machine. All navigation is serialized; a
// second Advance or GoBack issued while one is in flight waits for the first,
// so the history can never tear.
type Machine struct {
	records RecordSource
	nav     Navigator
	locks   LockController
	logger  *slog.Logger

	mu      sync.Mutex
	history []Step
}

// Option configures a Machine.
type Option func(*Machine)

// WithNavigator wires native history lockstep.
func WithNavigator(nav Navigator) Option {
	return func(m *Machine) { m.nav = nav }
}

// WithLockController wires wake-lock hold updates on step changes.
func WithLockController(locks LockController) Option {
	return func(m *Machine) { m.locks = locks }
}

// WithLogger sets the machine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// NewMachine builds a machine rooted at the intro step.
func NewMachine(records RecordSource, opts ...Option) *Machine {
	m := &Machine{
		records: records,
		history: []Step{StepIntro},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "flow")
	return m
}

// Current returns the active step, always the last history element.
func (m *Machine) Current() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[len(m.history)-1]
}

// History returns a copy of the visited step path.
func (m *Machine) History() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Step(nil), m.history...)
}

// CanGoBack reports whether a pop would succeed.
func (m *Machine) CanGoBack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history) > 1
}

// Advance moves to target. It fails with ErrIllegalTransition when target is
// not a permitted successor of the current step or the accumulated record
// does not satisfy target's precondition; the history is untouched on
// failure.
func (m *Machine) Advance(ctx context.Context, target Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.history[len(m.history)-1]
	if !Known(target) {
		return fmt.Errorf("%w: unknown step %s", ErrIllegalTransition, target)
	}
	if !isSuccessor(current, target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, target)
	}
	if err := CheckPrecondition(target, m.snapshot()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalTransition, target, err)
	}

	m.history = append(m.history, target)
	if m.nav != nil {
		m.nav.PushEntry(target)
	}
	m.logger.Debug("advanced step",
		logging.String(logging.FieldStep, string(target)),
		logging.Int("depth", len(m.history)),
		logging.String(logging.FieldEventType, "step_advanced"),
	)
	m.applyLockHold(ctx, target)
	return nil
}

// GoBack pops the current step. The newly current step becomes active and
// the native history entry pushed by the matching Advance is popped with it.
func (m *Machine) GoBack(ctx context.Context) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) <= 1 {
		return m.history[0], ErrAtRoot
	}
	step, err := m.popLocked(ctx)
	if err == nil && m.nav != nil {
		m.nav.PopEntry()
	}
	return step, err
}

// HandleNativeBack consumes one native back event as one logical pop. The
// native stack already popped, so no Navigator call is made. The returned
// boolean is false at root depth, where the platform default (leaving the
// app) must be allowed instead.
func (m *Machine) HandleNativeBack(ctx context.Context) (Step, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) <= 1 {
		return m.history[0], false
	}
	step, _ := m.popLocked(ctx)
	return step, true
}

func (m *Machine) popLocked(ctx context.Context) (Step, error) {
	popped := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	current := m.history[len(m.history)-1]

	m.logger.Debug("stepped back",
		logging.String("from", string(popped)),
		logging.String(logging.FieldStep, string(current)),
		logging.String(logging.FieldEventType, "step_back"),
	)
	m.applyLockHold(ctx, current)
	return current, nil
}

func (m *Machine) snapshot() identity.Record {
	if m.records == nil {
		return identity.Record{}
	}
	return m.records.Snapshot()
}

func (m *Machine) applyLockHold(ctx context.Context, step Step) {
	if m.locks == nil {
		return
	}
	if err := m.locks.SetHold(ctx, WantsWakeLock(step)); err != nil {
		m.logger.Warn("wake lock update failed",
			logging.Error(err),
			logging.String(logging.FieldStep, string(step)),
		)
	}
}

func isSuccessor(current, target Step) bool {
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	return false
}
