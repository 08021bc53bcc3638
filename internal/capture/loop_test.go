package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rollcall/internal/faceclient"
	"rollcall/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	opened  bool
	closed  bool
	openErr error
	grabs   int
}

func (f *fakeSource) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeSource) Grab(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabs++
	return "http://frames/latest.jpg", nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	errOn int // 1-based call index that fails, 0 = never
	faces []faceclient.Face
}

func (f *fakeExtractor) Detect(ctx context.Context, _ string) ([]faceclient.Face, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.errOn != 0 && call == f.errOn {
		return nil, errors.New("blurry frame")
	}
	return f.faces, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunClosesSourceOnCancel(t *testing.T) {
	src := &fakeSource{}
	ext := &fakeExtractor{faces: []faceclient.Face{{Embedding: model.Descriptor{1}}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	loop := New(src, ext, func(context.Context, faceclient.Face) {}, 5*time.Millisecond, zerolog.Nop())
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return ext.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, src.closed, "source must be released on exit")
}

func TestOpenFailureIsCameraAccessDenied(t *testing.T) {
	src := &fakeSource{openErr: errors.New("permission denied by host")}
	loop := New(src, &fakeExtractor{}, func(context.Context, faceclient.Face) {}, time.Millisecond, zerolog.Nop())

	err := loop.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraAccessDenied)
}

func TestInFlightGuardSkipsOverlappingTicks(t *testing.T) {
	src := &fakeSource{}
	// Extraction takes far longer than the poll interval; overlapping ticks
	// must be skipped, not queued.
	ext := &fakeExtractor{delay: 60 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	loop := New(src, ext, func(context.Context, faceclient.Face) {}, 5*time.Millisecond, zerolog.Nop())
	_ = loop.Run(ctx)

	require.LessOrEqual(t, ext.callCount(), 4, "cycles must not overlap")
}

func TestLoopSurvivesFrameErrors(t *testing.T) {
	src := &fakeSource{}
	ext := &fakeExtractor{errOn: 1, faces: []faceclient.Face{{Embedding: model.Descriptor{1}}}}

	var handled atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	loop := New(src, ext, func(context.Context, faceclient.Face) { handled.Add(1) }, 5*time.Millisecond, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// First cycle errors; later cycles still hand faces to the handler.
	require.Eventually(t, func() bool { return handled.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestFacesHandledInExtractionOrder(t *testing.T) {
	src := &fakeSource{}
	ext := &fakeExtractor{faces: []faceclient.Face{
		{Box: faceclient.Box{X: 1}},
		{Box: faceclient.Box{X: 2}},
		{Box: faceclient.Box{X: 3}},
	}}

	var mu sync.Mutex
	var order []float64
	ctx, cancel := context.WithCancel(context.Background())
	loop := New(src, ext, func(_ context.Context, f faceclient.Face) {
		mu.Lock()
		order = append(order, f.Box.X)
		mu.Unlock()
	}, 5*time.Millisecond, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 3
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []float64{1, 2, 3}, order[:3])
}
