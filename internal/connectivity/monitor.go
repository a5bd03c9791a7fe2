package connectivity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"veriflow/internal/config"
	"veriflow/internal/logging"
)

// Event describes one observed reachability transition.
type Event struct {
	Online bool
	At     time.Time
}

// probeFunc reports whether the upload endpoint is currently reachable.
type probeFunc func(ctx context.Context) bool

// Monitor tracks reachability state. Transitions arrive either from the
// embedding platform via SetOnline or from the periodic HTTP probe; both paths
// share the same edge detection so the reconnect hook never fires twice for a
// single offline-to-online transition.
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger
	probe  probeFunc

	mu          sync.Mutex
	online      bool
	subscribers map[int]chan Event
	nextSubID   int
	onReconnect func(context.Context)

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// subscriberBuffer bounds per-subscriber event backlog; slow consumers drop
// stale transitions rather than blocking the monitor.
const subscriberBuffer = 8

// NewMonitor builds a monitor that starts in the online state. A probe URL in
// the configuration enables active reachability checks once Start is called.
func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Monitor{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "connectivity"),
		online:      true,
		subscribers: make(map[int]chan Event),
	}
	if cfg != nil && cfg.Connectivity.ProbeURL != "" {
		m.probe = buildHTTPProbe(cfg.Connectivity.ProbeURL)
	}
	return m
}

// SetOnReconnect registers the hook fired on each offline-to-online edge.
// Typically wired to the uploader's reconnect drain.
func (m *Monitor) SetOnReconnect(hook func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = hook
}

// IsOnline reports the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a listener for reachability transitions. The returned
// id must be passed to Unsubscribe when the listener goes away.
func (m *Monitor) Subscribe() (int, <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel. Unknown ids are
// ignored so teardown paths can call it unconditionally.
func (m *Monitor) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.subscribers[id]
	if !ok {
		return
	}
	delete(m.subscribers, id)
	close(ch)
}

// SetOnline records a reachability observation. Repeated observations of the
// same state are no-ops; an offline-to-online edge notifies subscribers and
// fires the reconnect hook exactly once.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	event := Event{Online: online, At: time.Now()}
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	hook := m.onReconnect
	m.mu.Unlock()

	if online {
		m.logger.Info("connection restored",
			logging.String(logging.FieldEventType, "connectivity_online"),
		)
		if hook != nil {
			hook(ctx)
		}
	} else {
		m.logger.Info("connection lost",
			logging.String(logging.FieldEventType, "connectivity_offline"),
		)
	}
}

// Foreground handles the app returning to the foreground after the given
// absence. Long absences trigger the reconnect hook even without an observed
// offline edge, because suspended processes miss transitions entirely.
func (m *Monitor) Foreground(ctx context.Context, backgroundedFor time.Duration) {
	if m.cfg == nil {
		return
	}
	threshold := time.Duration(m.cfg.Connectivity.ForegroundDrainAfter) * time.Second
	if threshold <= 0 || backgroundedFor < threshold {
		return
	}

	m.mu.Lock()
	online := m.online
	hook := m.onReconnect
	m.mu.Unlock()

	if !online || hook == nil {
		return
	}
	m.logger.Info("resuming sync after foreground",
		logging.Duration("backgrounded_for", backgroundedFor),
		logging.String(logging.FieldEventType, "connectivity_foreground_drain"),
	)
	hook(ctx)
}

// Start launches the periodic HTTP probe loop. It fails when no probe URL is
// configured or the monitor is already running.
func (m *Monitor) Start(ctx context.Context) error {
	if m.probe == nil {
		return errors.New("no probe url configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("connectivity monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop()
	return nil
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.Connectivity.ProbeInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.SetOnline(m.ctx, m.probe(m.ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.ctx, m.probe(m.ctx))
		}
	}
}

func buildHTTPProbe(url string) probeFunc {
	client := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}
}
