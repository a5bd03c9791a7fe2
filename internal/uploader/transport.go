package uploader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"veriflow/internal/config"
	"veriflow/internal/faults"
	"veriflow/internal/queue"
)

// Transport ships one artifact payload to the backend. Progress callbacks
// receive a percentage in [0, 100]; implementations may skip intermediate
// updates but must report 100 before returning nil.
type Transport interface {
	Upload(ctx context.Context, item *queue.Item, progress func(percent float64)) error
}

// HTTPTransport posts artifact payloads to the configured upload endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport builds a transport from the sync configuration.
func NewHTTPTransport(cfg *config.Config) *HTTPTransport {
	timeout := time.Duration(cfg.Sync.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		endpoint: cfg.Sync.UploadEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Upload streams the payload file to the endpoint. Transport failures map to
// the shared fault sentinels so callers can distinguish retryable network
// errors from permanent server rejections.
func (t *HTTPTransport) Upload(ctx context.Context, item *queue.Item, progress func(percent float64)) error {
	if t.endpoint == "" {
		return faults.Wrap(faults.ErrNetwork, "uploader", "upload", "no upload endpoint configured", nil)
	}

	file, err := os.Open(item.PayloadPath)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, file)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Artifact-Kind", string(item.Kind))
	req.Header.Set("X-Artifact-ID", item.ID)
	req.Header.Set("X-Artifact-Name", filepath.Base(item.PayloadPath))
	req.ContentLength = item.SizeBytes

	if progress != nil {
		progress(0)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return faults.Wrap(faults.ErrNetwork, "uploader", "upload",
			fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return faults.Wrap(faults.ErrServerRejected, "uploader", "upload",
			fmt.Sprintf("server rejected upload with %d", resp.StatusCode), nil)
	}

	if progress != nil {
		progress(100)
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.ErrTimeout, "uploader", "upload", "", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return faults.Wrap(faults.ErrTimeout, "uploader", "upload", "", err)
	}
	return faults.Wrap(faults.ErrNetwork, "uploader", "upload", "", err)
}
