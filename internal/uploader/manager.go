package uploader

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"veriflow/internal/config"
	"veriflow/internal/faults"
	"veriflow/internal/logging"
	"veriflow/internal/notifications"
	"veriflow/internal/queue"
)

// Manager drains the offline queue. DrainQueue may be called from any number
// of triggers (step entry, reconnect, manual retry); overlapping calls
// coalesce into the drain already in progress.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	transport Transport
	notifier  notifications.Service

	mu       sync.Mutex
	draining bool
}

// NewManager wires a drain manager over the queue store and transport.
func NewManager(cfg *config.Config, store *queue.Store, transport Transport, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "uploader"),
		transport: transport,
		notifier:  notifier,
	}
}

// DrainQueue uploads every pending item and blocks until the pass finishes.
// When a drain is already running the call returns immediately without
// starting a second pass; the running drain picks up items enqueued behind it
// because it re-reads the pending set after each round.
func (m *Manager) DrainQueue(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.draining = false
		m.mu.Unlock()
	}()

	started := time.Now()
	var uploaded, failed int

	for {
		pending, err := m.store.ListPending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			break
		}

		roundUploaded, roundFailed := m.uploadRound(ctx, pending)
		uploaded += roundUploaded
		failed += roundFailed

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if roundUploaded == 0 && roundFailed == 0 {
			// nothing was claimable; another process holds the items
			break
		}
	}

	if uploaded > 0 || failed > 0 {
		m.logger.Info("queue drain finished",
			logging.Int("uploaded", uploaded),
			logging.Int("failed", failed),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldEventType, "queue_drain_finished"),
		)
		if err := m.notifier.NotifyQueueCompleted(ctx, uploaded, failed, time.Since(started)); err != nil {
			m.logger.Warn("queue notification failed", logging.Error(err))
		}
		m.purgeCompleted(ctx)
	}
	return nil
}

// uploadRound uploads one snapshot of the pending set with bounded
// concurrency and a launch stagger between workers.
func (m *Manager) uploadRound(ctx context.Context, pending []*queue.Item) (uploaded, failed int) {
	concurrency := m.cfg.Sync.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	stagger := time.Duration(m.cfg.Sync.StaggerMillis) * time.Millisecond

	sem := make(chan struct{}, concurrency)
	results := make(chan bool, len(pending))
	var wg sync.WaitGroup

	for i, item := range pending {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && stagger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(stagger):
			}
			if ctx.Err() != nil {
				break
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(item *queue.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			ok, attempted := m.uploadOne(ctx, item)
			if attempted {
				results <- ok
			}
		}(item)
	}

	wg.Wait()
	close(results)
	for ok := range results {
		if ok {
			uploaded++
		} else {
			failed++
		}
	}
	return uploaded, failed
}

// uploadOne claims and uploads a single item. The claim is the pending ->
// uploading transition; losing the claim means another drain took the item
// and is not counted as an attempt.
func (m *Manager) uploadOne(ctx context.Context, item *queue.Item) (ok, attempted bool) {
	if err := m.store.MarkUploading(ctx, item.ID); err != nil {
		return false, false
	}

	logger := m.logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String("kind", string(item.Kind)),
	)
	logger.Info("uploading artifact",
		logging.Int64("size_bytes", item.SizeBytes),
		logging.String(logging.FieldEventType, "upload_started"),
	)

	err := m.transport.Upload(ctx, item, func(percent float64) {
		if progressErr := m.store.SetProgress(ctx, item.ID, percent); progressErr != nil {
			logger.Debug("progress update failed", logging.Error(progressErr))
		}
	})
	if err == nil {
		if markErr := m.store.MarkCompleted(ctx, item.ID); markErr != nil {
			logger.Error("completion record failed", logging.Error(markErr))
			return false, true
		}
		logger.Info("upload complete",
			logging.String(logging.FieldEventType, "upload_completed"),
		)
		if notifyErr := m.notifier.NotifyUploadCompleted(ctx, item); notifyErr != nil {
			logger.Warn("upload notification failed", logging.Error(notifyErr))
		}
		return true, true
	}

	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		// cancelled mid-flight; the attempt does not count
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if releaseErr := m.store.Release(releaseCtx, item.ID); releaseErr != nil {
			logger.Error("release after cancellation failed", logging.Error(releaseErr))
		}
		return false, false
	}

	logger.Warn("upload failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, faults.Kind(err)),
		logging.String(logging.FieldEventType, "upload_failed"),
	)
	if markErr := m.store.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
		logger.Error("failure record failed", logging.Error(markErr))
	}
	if notifyErr := m.notifier.NotifyUploadFailed(ctx, item, err.Error()); notifyErr != nil {
		logger.Warn("failure notification failed", logging.Error(notifyErr))
	}
	return false, true
}

// Retry moves a failed item back to pending at the user's request and drains
// the queue so the item uploads immediately.
func (m *Manager) Retry(ctx context.Context, id string) error {
	if err := m.store.Retry(ctx, id); err != nil {
		return err
	}
	m.logger.Info("manual retry requested",
		logging.String(logging.FieldItemID, id),
		logging.String(logging.FieldEventType, "upload_retry"),
	)
	return m.DrainQueue(ctx)
}

// OnReconnect grants each failed item its automatic retry budget and drains
// the queue. Items past the budget stay failed until a manual retry.
func (m *Manager) OnReconnect(ctx context.Context) error {
	failedItems, err := m.store.List(ctx, queue.StatusFailed)
	if err != nil {
		return err
	}

	scheduled := 0
	for _, item := range failedItems {
		ok, retryErr := m.store.RecordAutoRetry(ctx, item.ID, m.cfg.Sync.MaxAutoRetries)
		if retryErr != nil {
			return retryErr
		}
		if ok {
			scheduled++
		}
	}
	if scheduled > 0 {
		m.logger.Info("scheduled automatic retries",
			logging.Int("count", scheduled),
			logging.String(logging.FieldEventType, "upload_auto_retry"),
		)
	}
	return m.DrainQueue(ctx)
}

func (m *Manager) purgeCompleted(ctx context.Context) {
	hours := m.cfg.Sync.PurgeAfterHrs
	if hours <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	removed, err := m.store.PurgeCompleted(ctx, cutoff)
	if err != nil {
		m.logger.Warn("purge failed", logging.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Debug("purged completed items", logging.Int64("count", removed))
	}
}
