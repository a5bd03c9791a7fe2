package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorageFull indicates the durable store rejected a write for lack of space.
	ErrStorageFull = errors.New("storage full")
	// ErrStorageUnavailable indicates the durable store could not be reached at all.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNetwork indicates a transport-level failure reaching the upload backend.
	ErrNetwork = errors.New("network error")
	// ErrTimeout indicates an upload attempt exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrServerRejected indicates the backend refused the submitted artifact.
	ErrServerRejected = errors.New("server rejected")
	// ErrCaptureAborted indicates the capture collaborator was dismissed mid-capture.
	ErrCaptureAborted = errors.New("capture aborted")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransport reports whether an error belongs to the upload transport family.
// All transport kinds are retried identically; the distinction is preserved
// only for diagnostics.
func IsTransport(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServerRejected)
}

// Kind returns the short classification string for a tagged error, or "unknown"
// when the error carries no recognized sentinel.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrStorageFull):
		return "storage_full"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrServerRejected):
		return "server_rejected"
	case errors.Is(err, ErrCaptureAborted):
		return "capture_aborted"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "fault"
	}
	return strings.Join(parts, ": ")
}
