package capture

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// URLSource is a FrameSource over a kiosk camera's snapshot endpoint. The
// endpoint serves the current frame on every GET, so Grab just hands the
// URL to the extraction service, which fetches the image itself.
type URLSource struct {
	URL  string
	HTTP *http.Client
}

// NewURLSource creates a snapshot-endpoint frame source.
func NewURLSource(url string) *URLSource {
	return &URLSource{
		URL:  url,
		HTTP: &http.Client{Timeout: 5 * time.Second},
	}
}

// Open probes the endpoint once so a misconfigured or unreachable camera
// fails at startup instead of on the first tick.
func (s *URLSource) Open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot endpoint returned %s", resp.Status)
	}
	return nil
}

// Grab returns the snapshot URL for the current frame.
func (s *URLSource) Grab(_ context.Context) (string, error) {
	return s.URL, nil
}

// Close is a no-op; the source holds no persistent connection.
func (s *URLSource) Close() error { return nil }
