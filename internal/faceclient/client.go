// Package faceclient calls the external face-extraction service: given an
// image, it returns zero or more face regions, each with a fixed-length
// embedding vector. The neural network behind it is a black box.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"rollcall/internal/model"
)

var (
	// ErrModelNotReady is returned when detection is requested before the
	// extraction service finished loading its models.
	ErrModelNotReady = errors.New("face model not ready")
	// ErrNoFaceDetected is returned by single-face detection when the image
	// contains no face; used to validate enrollment captures.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrMultipleFacesDetected is returned by single-face detection when
	// the image contains more than one face.
	ErrMultipleFacesDetected = errors.New("multiple faces detected")
)

// Box is a face bounding box within the source image.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one detected face region with its embedding.
type Face struct {
	Box       Box              `json:"box"`
	Embedding model.Descriptor `json:"embedding"`
}

// Client calls the face extraction microservice. With Skip set it returns
// deterministic fakes so the rest of the stack runs without the service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool

	ready atomic.Bool
}

// New creates a client with a generous timeout; extraction can be slow.
func New(baseURL string, skip bool) *Client {
	c := &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if skip {
		c.ready.Store(true)
	}
	return c
}

// Init probes the service until its models are loaded. Idempotent: once
// ready, it returns immediately.
func (c *Client) Init(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrModelNotReady, err)
	}
	c.ready.Store(true)
	return nil
}

// Ready reports whether detection calls can be made.
func (c *Client) Ready() bool { return c.ready.Load() }

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// Detect returns every face found in the image, in the order the service
// reports them. An image with no faces yields an empty slice, not an error:
// the capture loop treats frames without faces as normal.
func (c *Client) Detect(ctx context.Context, imageURL string) ([]Face, error) {
	if !c.ready.Load() {
		return nil, ErrModelNotReady
	}
	if c.Skip {
		emb := make(model.Descriptor, model.DescriptorDim)
		for i := range emb {
			emb[i] = 0.01 * float32(i%10)
		}
		return []Face{{
			Box:       Box{X: 120, Y: 80, Width: 200, Height: 200},
			Embedding: emb,
		}}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(respBody))
	}

	var out struct {
		Faces []Face `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Faces, nil
}

// DetectSingle validates an enrollment capture: exactly one face must be
// present.
func (c *Client) DetectSingle(ctx context.Context, imageURL string) (Face, error) {
	faces, err := c.Detect(ctx, imageURL)
	if err != nil {
		return Face{}, err
	}
	switch len(faces) {
	case 0:
		return Face{}, ErrNoFaceDetected
	case 1:
		return faces[0], nil
	default:
		return Face{}, ErrMultipleFacesDetected
	}
}
