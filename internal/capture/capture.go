package capture

import (
	"context"
	"fmt"

	"veriflow/internal/queue"
)

// Verdict is the quality assessment attached to a finished capture.
type Verdict string

const (
	// VerdictGood marks a capture accepted for upload.
	VerdictGood Verdict = "good"
	// VerdictBlurred marks a capture too blurry to process.
	VerdictBlurred Verdict = "blurred"
	// VerdictIncomplete marks a capture missing required content, such as a
	// document edge cut off by the frame.
	VerdictIncomplete Verdict = "incomplete"
)

// ParseVerdict validates a raw verdict string.
func ParseVerdict(value string) (Verdict, bool) {
	switch Verdict(value) {
	case VerdictGood, VerdictBlurred, VerdictIncomplete:
		return Verdict(value), true
	default:
		return "", false
	}
}

// Request asks a collaborator for one capture of the given artifact kind.
type Request struct {
	Kind queue.Kind
}

// Result is a finished capture. PayloadPath points at the stored artifact
// inside the artifact directory; the file outlives the capture session so a
// queued upload can read it after a restart.
type Result struct {
	PayloadPath string
	SizeBytes   int64
	Verdict     Verdict
}

// Accepted reports whether the capture passed quality checks and may be
// enqueued for upload.
func (r Result) Accepted() bool {
	return r.Verdict == VerdictGood
}

// Validate checks structural integrity of a result before it is enqueued.
func (r Result) Validate() error {
	if r.PayloadPath == "" {
		return fmt.Errorf("capture result missing payload path")
	}
	if r.SizeBytes <= 0 {
		return fmt.Errorf("capture result has invalid size %d", r.SizeBytes)
	}
	if _, ok := ParseVerdict(string(r.Verdict)); !ok {
		return fmt.Errorf("unknown capture verdict %q", r.Verdict)
	}
	return nil
}

// Collaborator produces captures on behalf of the flow. Implementations
// return ErrCaptureAborted from the faults package when the user backs out
// of the capture surface.
type Collaborator interface {
	Capture(ctx context.Context, req Request) (Result, error)
}
