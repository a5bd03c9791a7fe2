package uploader_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"veriflow/internal/config"
	"veriflow/internal/faults"
	"veriflow/internal/logging"
	"veriflow/internal/notifications"
	"veriflow/internal/queue"
	"veriflow/internal/testsupport"
	"veriflow/internal/uploader"
)

type fakeTransport struct {
	mu       sync.Mutex
	attempts map[string]int
	fail     map[string]error
	block    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		attempts: make(map[string]int),
		fail:     make(map[string]error),
	}
}

func (t *fakeTransport) Upload(ctx context.Context, item *queue.Item, progress func(float64)) error {
	t.mu.Lock()
	t.attempts[item.ID]++
	failErr := t.fail[item.ID]
	block := t.block
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failErr != nil {
		return failErr
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return nil
}

func (t *fakeTransport) attemptCount(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[id]
}

func newManager(t *testing.T, cfg *config.Config, store *queue.Store, transport uploader.Transport) *uploader.Manager {
	t.Helper()
	notifier := notifications.NewService(cfg)
	return uploader.NewManager(cfg, store, transport, notifier, logging.NewNop())
}

func TestDrainUploadsAllPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	mgr := newManager(t, cfg, store, transport)
	ctx := context.Background()

	a := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "a.jpg")
	b := testsupport.NewArtifact(t, store, cfg, queue.KindBiometric, "b.bin")

	if err := mgr.DrainQueue(ctx); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		item, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if item.Status != queue.StatusCompleted {
			t.Fatalf("expected %s completed, got %s", id, item.Status)
		}
		if transport.attemptCount(id) != 1 {
			t.Fatalf("expected one attempt for %s, got %d", id, transport.attemptCount(id))
		}
	}
}

func TestDrainIsIdempotentUnderConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(2))
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	transport.block = make(chan struct{})
	mgr := newManager(t, cfg, store, transport)
	ctx := context.Background()

	items := make([]*queue.Item, 0, 4)
	for i := 0; i < 4; i++ {
		items = append(items, testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "doc.jpg"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.DrainQueue(ctx); err != nil {
				t.Errorf("DrainQueue: %v", err)
			}
		}()
	}

	// let the overlapping calls observe the in-progress drain, then unblock
	time.Sleep(50 * time.Millisecond)
	close(transport.block)
	wg.Wait()

	for _, item := range items {
		if got := transport.attemptCount(item.ID); got != 1 {
			t.Fatalf("expected exactly one attempt for %s, got %d", item.ID, got)
		}
		fetched, _ := store.GetByID(ctx, item.ID)
		if fetched.Status != queue.StatusCompleted {
			t.Fatalf("expected completed, got %s", fetched.Status)
		}
	}
}

func TestFailedUploadStaysFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	mgr := newManager(t, cfg, store, transport)
	ctx := context.Background()

	item := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "doc.jpg")
	transport.fail[item.ID] = faults.Wrap(faults.ErrNetwork, "uploader", "upload", "", errors.New("connection reset"))

	if err := mgr.DrainQueue(ctx); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}

	fetched, _ := store.GetByID(ctx, item.ID)
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", fetched.Status)
	}
	if fetched.Attempts != 1 {
		t.Fatalf("expected one counted attempt, got %d", fetched.Attempts)
	}
	if fetched.LastError == "" {
		t.Fatal("expected failure reason recorded")
	}

	// a second drain must not touch failed items
	if err := mgr.DrainQueue(ctx); err != nil {
		t.Fatalf("second DrainQueue: %v", err)
	}
	if got := transport.attemptCount(item.ID); got != 1 {
		t.Fatalf("expected failed item left alone, got %d attempts", got)
	}
}

func TestCancellationReleasesItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	transport.block = make(chan struct{})
	mgr := newManager(t, cfg, store, transport)

	item := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "doc.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.DrainQueue(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	fetched, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected cancelled item back in pending, got %s", fetched.Status)
	}
	if fetched.Attempts != 0 {
		t.Fatalf("cancelled attempt must not count, got %d", fetched.Attempts)
	}
}

func TestManualRetryUploadsAgain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	mgr := newManager(t, cfg, store, transport)
	ctx := context.Background()

	item := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "doc.jpg")
	transport.fail[item.ID] = faults.Wrap(faults.ErrTimeout, "uploader", "upload", "", errors.New("deadline"))
	if err := mgr.DrainQueue(ctx); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}

	transport.mu.Lock()
	delete(transport.fail, item.ID)
	transport.mu.Unlock()

	if err := mgr.Retry(ctx, item.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	fetched, _ := store.GetByID(ctx, item.ID)
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s", fetched.Status)
	}
	if got := transport.attemptCount(item.ID); got != 2 {
		t.Fatalf("expected two attempts, got %d", got)
	}
}

func TestReconnectRetriesOnceThenRequiresManual(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAutoRetries(1))
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	mgr := newManager(t, cfg, store, transport)
	ctx := context.Background()

	item := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "doc.jpg")
	transport.fail[item.ID] = faults.Wrap(faults.ErrNetwork, "uploader", "upload", "", errors.New("unreachable"))

	if err := mgr.DrainQueue(ctx); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}
	if got := transport.attemptCount(item.ID); got != 1 {
		t.Fatalf("expected one attempt, got %d", got)
	}

	// first reconnect grants the automatic retry
	if err := mgr.OnReconnect(ctx); err != nil {
		t.Fatalf("OnReconnect: %v", err)
	}
	if got := transport.attemptCount(item.ID); got != 2 {
		t.Fatalf("expected automatic retry, got %d attempts", got)
	}

	// further reconnects leave the exhausted item failed
	if err := mgr.OnReconnect(ctx); err != nil {
		t.Fatalf("second OnReconnect: %v", err)
	}
	if got := transport.attemptCount(item.ID); got != 2 {
		t.Fatalf("expected retry budget exhausted, got %d attempts", got)
	}

	fetched, _ := store.GetByID(ctx, item.ID)
	if !fetched.NeedsManualRetry(cfg.Sync.MaxAutoRetries) {
		t.Fatal("expected item to require manual retry")
	}
}

func TestDrainPicksUpItemsEnqueuedMidPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := newFakeTransport()
	transport.block = make(chan struct{})
	mgr := newManager(t, cfg, store, transport)
	ctx := context.Background()

	first := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "first.jpg")

	done := make(chan error, 1)
	go func() { done <- mgr.DrainQueue(ctx) }()

	time.Sleep(50 * time.Millisecond)
	second := testsupport.NewArtifact(t, store, cfg, queue.KindDocument, "second.jpg")
	close(transport.block)

	if err := <-done; err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}

	for _, id := range []string{first.ID, second.ID} {
		fetched, _ := store.GetByID(ctx, id)
		if fetched.Status != queue.StatusCompleted {
			t.Fatalf("expected %s completed, got %s", id, fetched.Status)
		}
	}
}
