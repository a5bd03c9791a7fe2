package session

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"veriflow/internal/capture"
	"veriflow/internal/config"
	"veriflow/internal/connectivity"
	"veriflow/internal/flow"
	"veriflow/internal/identity"
	"veriflow/internal/logging"
	"veriflow/internal/queue"
	"veriflow/internal/uploader"
	"veriflow/internal/wakelock"
)

// Session is one user's verification run. It owns the step machine and the
// accumulated record; all other components are shared services.
type Session struct {
	cfg     *config.Config
	logger  *slog.Logger
	machine *flow.Machine
	record  *identity.Accumulator
	store   *queue.Store
	uploads *uploader.Manager
	monitor *connectivity.Monitor
	locks   *wakelock.Manager
	collab  capture.Collaborator
}

// Option configures a Session.
type Option func(*options)

type options struct {
	nav  flow.Navigator
	seed identity.Record
}

// WithNavigator wires native back-stack lockstep into the step machine.
func WithNavigator(nav flow.Navigator) Option {
	return func(o *options) { o.nav = nav }
}

// WithSeedRecord starts the session from a previously accumulated record.
func WithSeedRecord(seed identity.Record) Option {
	return func(o *options) { o.seed = seed }
}

// New builds a session and registers the reconnect drain with the
// connectivity monitor.
func New(
	cfg *config.Config,
	store *queue.Store,
	uploads *uploader.Manager,
	monitor *connectivity.Monitor,
	locks *wakelock.Manager,
	collab capture.Collaborator,
	logger *slog.Logger,
	opts ...Option,
) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	record := identity.NewAccumulator(o.seed)
	machineOpts := []flow.Option{
		flow.WithLockController(locks),
		flow.WithLogger(logger),
	}
	if o.nav != nil {
		machineOpts = append(machineOpts, flow.WithNavigator(o.nav))
	}

	s := &Session{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "session"),
		machine: flow.NewMachine(record, machineOpts...),
		record:  record,
		store:   store,
		uploads: uploads,
		monitor: monitor,
		locks:   locks,
		collab:  collab,
	}

	if monitor != nil && uploads != nil {
		monitor.SetOnReconnect(func(ctx context.Context) {
			if err := uploads.OnReconnect(ctx); err != nil {
				s.logger.Warn("reconnect drain failed", logging.Error(err))
			}
		})
	}
	return s
}

// CurrentStep returns the active workflow step.
func (s *Session) CurrentStep() flow.Step {
	return s.machine.Current()
}

// History returns the visited step path.
func (s *Session) History() []flow.Step {
	return s.machine.History()
}

// Record returns a snapshot of the accumulated identity data.
func (s *Session) Record() identity.Record {
	return s.record.Snapshot()
}

// Advance merges the partial record the finishing step produced, then moves
// to target. Entering the upload step drains the queue when the device is
// online; drain failures are logged but never fail the advance, so workflow
// position stays independent of transmission outcome.
func (s *Session) Advance(ctx context.Context, target flow.Step, partial identity.Record) error {
	if err := s.record.Merge(partial); err != nil {
		return fmt.Errorf("merge step data: %w", err)
	}
	if err := s.machine.Advance(ctx, target); err != nil {
		return err
	}

	if target == flow.StepUpload && s.uploads != nil {
		if s.monitor == nil || s.monitor.IsOnline() {
			if err := s.uploads.DrainQueue(ctx); err != nil {
				s.logger.Warn("upload drain failed",
					logging.Error(err),
					logging.String(logging.FieldStep, string(target)),
				)
			}
		} else {
			s.logger.Info("offline, uploads deferred",
				logging.String(logging.FieldStep, string(target)),
				logging.String(logging.FieldEventType, "upload_deferred"),
			)
		}
	}
	return nil
}

// Back pops one step.
func (s *Session) Back(ctx context.Context) (flow.Step, error) {
	return s.machine.GoBack(ctx)
}

// HandleNativeBack consumes one platform back event.
func (s *Session) HandleNativeBack(ctx context.Context) (flow.Step, bool) {
	return s.machine.HandleNativeBack(ctx)
}

// CompleteCapture runs the capture collaborator for the current capture step.
// A non-good verdict returns the result without enqueueing so the caller can
// re-prompt; a good capture is enqueued for upload and its reference merged
// into the identity record.
func (s *Session) CompleteCapture(ctx context.Context, kind queue.Kind) (capture.Result, *queue.Item, error) {
	if s.collab == nil {
		return capture.Result{}, nil, fmt.Errorf("no capture collaborator configured")
	}

	result, err := s.collab.Capture(ctx, capture.Request{Kind: kind})
	if err != nil {
		return capture.Result{}, nil, err
	}
	if !result.Accepted() {
		s.logger.Info("capture needs retake",
			logging.String("kind", string(kind)),
			logging.String("verdict", string(result.Verdict)),
			logging.String(logging.FieldEventType, "capture_retake"),
		)
		return result, nil, nil
	}
	if err := result.Validate(); err != nil {
		return capture.Result{}, nil, err
	}

	item, err := s.store.Enqueue(ctx, kind, result.PayloadPath, result.SizeBytes)
	if err != nil {
		return result, nil, err
	}

	var partial identity.Record
	switch kind {
	case queue.KindDocument:
		partial.DocumentRefs = []string{result.PayloadPath}
	case queue.KindBiometric:
		partial.FaceRef = identity.StringPtr(result.PayloadPath)
		partial.FaceVerified = identity.BoolPtr(true)
	}
	if err := s.record.Merge(partial); err != nil {
		return result, item, fmt.Errorf("merge capture refs: %w", err)
	}

	s.logger.Info("capture accepted",
		logging.String("kind", string(kind)),
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldEventType, "capture_accepted"),
	)
	return result, item, nil
}

// RetryUpload requeues a failed item at the user's request.
func (s *Session) RetryUpload(ctx context.Context, id string) error {
	if s.uploads == nil {
		return fmt.Errorf("no uploader configured")
	}
	return s.uploads.Retry(ctx, id)
}

// OnUserGesture forwards a user interaction to the wake lock manager so a
// denied acquisition can retry.
func (s *Session) OnUserGesture(ctx context.Context) error {
	if s.locks == nil {
		return nil
	}
	return s.locks.OnUserGesture(ctx)
}

// HandleVisibility reacts to the app being hidden or shown: the wake lock is
// released on hide and reacquired on show, and a long background interval
// triggers a drain check on return.
func (s *Session) HandleVisibility(ctx context.Context, visible bool, backgroundedFor time.Duration) error {
	if s.locks != nil {
		if err := s.locks.HandleVisibility(ctx, visible); err != nil {
			return err
		}
	}
	if visible && s.monitor != nil {
		s.monitor.Foreground(ctx, backgroundedFor)
	}
	return nil
}
