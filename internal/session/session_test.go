package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"veriflow/internal/capture"
	"veriflow/internal/config"
	"veriflow/internal/connectivity"
	"veriflow/internal/faults"
	"veriflow/internal/flow"
	"veriflow/internal/identity"
	"veriflow/internal/logging"
	"veriflow/internal/notifications"
	"veriflow/internal/queue"
	"veriflow/internal/session"
	"veriflow/internal/testsupport"
	"veriflow/internal/uploader"
	"veriflow/internal/wakelock"
)

type fakeTransport struct {
	mu       sync.Mutex
	attempts map[string]int
	fail     map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{attempts: make(map[string]int), fail: make(map[string]error)}
}

func (t *fakeTransport) Upload(_ context.Context, item *queue.Item, progress func(float64)) error {
	t.mu.Lock()
	t.attempts[item.ID]++
	failErr := t.fail[item.ID]
	t.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

func (t *fakeTransport) attemptCount(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[id]
}

type failingTransport struct {
	err error
}

func (t *failingTransport) Upload(context.Context, *queue.Item, func(float64)) error {
	return t.err
}

type scriptedCapture struct {
	results []capture.Result
	errs    []error
	calls   int
}

func (c *scriptedCapture) Capture(_ context.Context, _ capture.Request) (capture.Result, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return capture.Result{}, c.errs[i]
	}
	if i < len(c.results) {
		return c.results[i], nil
	}
	return capture.Result{}, errors.New("unscripted capture call")
}

type wakePlatform struct{}

func (wakePlatform) Supported() bool { return true }

func (wakePlatform) Acquire(context.Context) (wakelock.Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

type env struct {
	cfg       *config.Config
	store     *queue.Store
	transport uploader.Transport
	uploads   *uploader.Manager
	monitor   *connectivity.Monitor
	session   *session.Session
	collab    *scriptedCapture
}

func newEnv(t *testing.T, transport uploader.Transport, collab *scriptedCapture) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	uploads := uploader.NewManager(cfg, store, transport, notifications.NewService(cfg), logger)
	monitor := connectivity.NewMonitor(cfg, logger)
	locks := wakelock.NewManager(cfg, logger, wakePlatform{})
	sess := session.New(cfg, store, uploads, monitor, locks, collab, logger)
	return &env{cfg: cfg, store: store, transport: transport, uploads: uploads, monitor: monitor, session: sess, collab: collab}
}

func artifact(t *testing.T, cfg *config.Config, name string) (string, int64) {
	t.Helper()
	path := filepath.Join(cfg.Paths.ArtifactDir, name)
	payload := []byte("payload for " + name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path, int64(len(payload))
}

func goodResult(path string, size int64) capture.Result {
	return capture.Result{PayloadPath: path, SizeBytes: size, Verdict: capture.VerdictGood}
}

func runToMethodSelect(t *testing.T, sess *session.Session) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		target  flow.Step
		partial identity.Record
	}{
		{flow.StepLocaleSelect, identity.Record{}},
		{flow.StepIdentityLogin, identity.Record{Locale: identity.StringPtr("hi")}},
		{flow.StepMethodSelect, identity.Record{Phone: identity.StringPtr("+911234567890"), Region: identity.StringPtr("IN")}},
	}
	for _, step := range steps {
		if err := sess.Advance(ctx, step.target, step.partial); err != nil {
			t.Fatalf("Advance(%s): %v", step.target, err)
		}
	}
}

func TestHappyPathUploadsAndCompletes(t *testing.T) {
	transport := newFakeTransport()
	collab := &scriptedCapture{}
	e := newEnv(t, transport, collab)
	ctx := context.Background()

	runToMethodSelect(t, e.session)
	if err := e.session.Advance(ctx, flow.StepDocumentCapture, identity.Record{Method: identity.StringPtr("aadhaar")}); err != nil {
		t.Fatalf("Advance(document-capture): %v", err)
	}

	docPath, docSize := artifact(t, e.cfg, "aadhaar.jpg")
	facePath, faceSize := artifact(t, e.cfg, "face.bin")
	collab.results = []capture.Result{goodResult(docPath, docSize), goodResult(facePath, faceSize)}

	if _, item, err := e.session.CompleteCapture(ctx, queue.KindDocument); err != nil || item == nil {
		t.Fatalf("document capture: item=%v err=%v", item, err)
	}
	if err := e.session.Advance(ctx, flow.StepBiometricCapture, identity.Record{}); err != nil {
		t.Fatalf("Advance(biometric-capture): %v", err)
	}
	if _, item, err := e.session.CompleteCapture(ctx, queue.KindBiometric); err != nil || item == nil {
		t.Fatalf("biometric capture: item=%v err=%v", item, err)
	}

	// entering the upload step drains the queue
	if err := e.session.Advance(ctx, flow.StepUpload, identity.Record{}); err != nil {
		t.Fatalf("Advance(upload): %v", err)
	}

	items, err := e.store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two queue items, got %d", len(items))
	}
	for _, item := range items {
		if item.Status != queue.StatusCompleted {
			t.Fatalf("expected %s completed, got %s", item.ID, item.Status)
		}
	}

	for _, target := range []flow.Step{flow.StepReview, flow.StepComplete, flow.StepFeedback} {
		if err := e.session.Advance(ctx, target, identity.Record{}); err != nil {
			t.Fatalf("Advance(%s): %v", target, err)
		}
	}

	record := e.session.Record()
	if record.FaceVerified == nil || !*record.FaceVerified {
		t.Fatal("expected face verification flag set")
	}
	if len(record.DocumentRefs) != 1 || record.DocumentRefs[0] != docPath {
		t.Fatalf("unexpected document refs: %v", record.DocumentRefs)
	}
}

func TestUploadFailureNeverTouchesRecordOrHistory(t *testing.T) {
	transport := &failingTransport{
		err: faults.Wrap(faults.ErrNetwork, "uploader", "upload", "", errors.New("unreachable")),
	}
	collab := &scriptedCapture{}
	e := newEnv(t, transport, collab)
	ctx := context.Background()

	runToMethodSelect(t, e.session)
	if err := e.session.Advance(ctx, flow.StepDocumentCapture, identity.Record{Method: identity.StringPtr("aadhaar")}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	docPath, docSize := artifact(t, e.cfg, "doc.jpg")
	facePath, faceSize := artifact(t, e.cfg, "face.bin")
	collab.results = []capture.Result{goodResult(docPath, docSize), goodResult(facePath, faceSize)}
	if _, _, err := e.session.CompleteCapture(ctx, queue.KindDocument); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := e.session.Advance(ctx, flow.StepBiometricCapture, identity.Record{}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, _, err := e.session.CompleteCapture(ctx, queue.KindBiometric); err != nil {
		t.Fatalf("capture: %v", err)
	}

	recordBefore := e.session.Record()
	historyBefore := e.session.History()

	// every upload fails; the advance itself must still succeed
	if err := e.session.Advance(ctx, flow.StepUpload, identity.Record{}); err != nil {
		t.Fatalf("Advance(upload): %v", err)
	}

	failedItems, err := e.store.List(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failedItems) != 2 {
		t.Fatalf("expected both uploads failed, got %d", len(failedItems))
	}

	recordAfter := e.session.Record()
	if !reflect.DeepEqual(recordBefore, recordAfter) {
		t.Fatalf("upload failure mutated the record: %#v vs %#v", recordBefore, recordAfter)
	}
	historyAfter := e.session.History()
	if len(historyAfter) != len(historyBefore)+1 {
		t.Fatalf("expected exactly the upload step appended, got %v", historyAfter)
	}
}

func TestBlurredCaptureIsRepromptedWithoutEnqueue(t *testing.T) {
	transport := newFakeTransport()
	collab := &scriptedCapture{}
	e := newEnv(t, transport, collab)
	ctx := context.Background()

	runToMethodSelect(t, e.session)
	if err := e.session.Advance(ctx, flow.StepDocumentCapture, identity.Record{Method: identity.StringPtr("aadhaar")}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	docPath, docSize := artifact(t, e.cfg, "doc.jpg")
	collab.results = []capture.Result{
		{PayloadPath: docPath, SizeBytes: docSize, Verdict: capture.VerdictBlurred},
		goodResult(docPath, docSize),
	}

	result, item, err := e.session.CompleteCapture(ctx, queue.KindDocument)
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if item != nil {
		t.Fatal("blurred capture must not be enqueued")
	}
	if result.Verdict != capture.VerdictBlurred {
		t.Fatalf("expected blurred verdict, got %s", result.Verdict)
	}
	if refs := e.session.Record().DocumentRefs; len(refs) != 0 {
		t.Fatalf("blurred capture must not merge refs, got %v", refs)
	}

	// same step, second attempt
	if _, item, err := e.session.CompleteCapture(ctx, queue.KindDocument); err != nil || item == nil {
		t.Fatalf("retake: item=%v err=%v", item, err)
	}
	if e.session.CurrentStep() != flow.StepDocumentCapture {
		t.Fatalf("retake must not move the workflow, got %s", e.session.CurrentStep())
	}
}

func TestAbortedCaptureSurfaces(t *testing.T) {
	collab := &scriptedCapture{
		errs: []error{faults.Wrap(faults.ErrCaptureAborted, "capture", "document", "", nil)},
	}
	e := newEnv(t, newFakeTransport(), collab)
	ctx := context.Background()

	runToMethodSelect(t, e.session)
	if err := e.session.Advance(ctx, flow.StepDocumentCapture, identity.Record{Method: identity.StringPtr("aadhaar")}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	_, _, err := e.session.CompleteCapture(ctx, queue.KindDocument)
	if !errors.Is(err, faults.ErrCaptureAborted) {
		t.Fatalf("expected ErrCaptureAborted, got %v", err)
	}
	if e.session.CurrentStep() != flow.StepDocumentCapture {
		t.Fatalf("abort must keep the workflow on the capture step, got %s", e.session.CurrentStep())
	}
}

func TestReconnectRetriesFailedItemOnce(t *testing.T) {
	transport := newFakeTransport()
	e := newEnv(t, transport, &scriptedCapture{})
	ctx := context.Background()

	item := testsupport.NewArtifact(t, e.store, e.cfg, queue.KindDocument, "doc.jpg")
	transport.fail[item.ID] = faults.Wrap(faults.ErrNetwork, "uploader", "upload", "", errors.New("unreachable"))

	if err := e.uploads.DrainQueue(ctx); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}
	fetched, _ := e.store.GetByID(ctx, item.ID)
	if fetched.Status != queue.StatusFailed || fetched.Attempts != 1 {
		t.Fatalf("expected one failed attempt, got %s/%d", fetched.Status, fetched.Attempts)
	}

	transport.mu.Lock()
	delete(transport.fail, item.ID)
	transport.mu.Unlock()

	// regaining connectivity triggers exactly one drain with one automatic retry
	e.monitor.SetOnline(ctx, false)
	e.monitor.SetOnline(ctx, true)

	fetched, err := e.store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after reconnect retry, got %s", fetched.Status)
	}
	if got := transport.attemptCount(item.ID); got != 2 {
		t.Fatalf("expected exactly one automatic re-attempt, got %d total", got)
	}
}

func TestManualRetryThroughSession(t *testing.T) {
	transport := newFakeTransport()
	e := newEnv(t, transport, &scriptedCapture{})
	ctx := context.Background()

	item := testsupport.NewArtifact(t, e.store, e.cfg, queue.KindDocument, "doc.jpg")
	transport.fail[item.ID] = faults.Wrap(faults.ErrServerRejected, "uploader", "upload", "", errors.New("422"))
	if err := e.uploads.DrainQueue(ctx); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}

	transport.mu.Lock()
	delete(transport.fail, item.ID)
	transport.mu.Unlock()

	if err := e.session.RetryUpload(ctx, item.ID); err != nil {
		t.Fatalf("RetryUpload: %v", err)
	}
	fetched, _ := e.store.GetByID(ctx, item.ID)
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after manual retry, got %s", fetched.Status)
	}
}

func TestVisibilityRoundTrip(t *testing.T) {
	e := newEnv(t, newFakeTransport(), &scriptedCapture{})
	ctx := context.Background()

	if err := e.session.HandleVisibility(ctx, false, 0); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := e.session.HandleVisibility(ctx, true, time.Hour); err != nil {
		t.Fatalf("show: %v", err)
	}
}

func TestDeepLinkRequiresPrecondition(t *testing.T) {
	e := newEnv(t, newFakeTransport(), &scriptedCapture{})
	ctx := context.Background()

	if err := e.session.Advance(ctx, flow.StepLocaleSelect, identity.Record{}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	err := e.session.Advance(ctx, flow.StepIdentityLogin, identity.Record{})
	if !errors.Is(err, flow.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition without locale, got %v", err)
	}
}
