// Package capture runs the fixed-interval recognition loop over a camera
// or kiosk frame source.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rollcall/internal/faceclient"
)

// ErrCameraAccessDenied is returned when the frame source cannot be opened.
var ErrCameraAccessDenied = errors.New("camera access denied")

// DefaultInterval is how often a frame is polled for faces.
const DefaultInterval = time.Second

// FrameSource yields frame references for extraction. Open must be called
// before Grab; Close releases the underlying device or stream.
type FrameSource interface {
	Open(ctx context.Context) error
	Grab(ctx context.Context) (imageURL string, err error)
	Close() error
}

// Extractor is the subset of the face client the loop needs.
type Extractor interface {
	Detect(ctx context.Context, imageURL string) ([]faceclient.Face, error)
}

// Handler processes one detected face. Faces within a cycle arrive in the
// order the extractor reports them.
type Handler func(ctx context.Context, face faceclient.Face)

// Loop polls the frame source at a fixed interval. Extraction is the only
// suspending operation, so a guard skips ticks while a previous cycle is
// still resolving rather than piling up concurrent extractions against the
// same source.
type Loop struct {
	source   FrameSource
	extract  Extractor
	handle   Handler
	interval time.Duration
	log      zerolog.Logger

	inFlight atomic.Bool
}

// New creates a loop; interval <= 0 selects DefaultInterval.
func New(source FrameSource, extract Extractor, handle Handler, interval time.Duration, log zerolog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		source:   source,
		extract:  extract,
		handle:   handle,
		interval: interval,
		log:      log,
	}
}

// Run polls until ctx is cancelled. The frame source is closed on every
// exit path. A single frame's processing error never stops the loop; the
// next tick operates on a fresh frame.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.source.Open(ctx); err != nil {
		return errors.Join(ErrCameraAccessDenied, err)
	}
	defer l.source.Close()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !l.inFlight.CompareAndSwap(false, true) {
				continue // previous cycle still resolving
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer l.inFlight.Store(false)
				l.cycle(ctx)
			}()
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	frame, err := l.source.Grab(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("frame grab failed")
		}
		return
	}

	faces, err := l.extract.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("face extraction failed")
		}
		return
	}

	for _, face := range faces {
		if ctx.Err() != nil {
			return
		}
		l.handle(ctx, face)
	}
}
