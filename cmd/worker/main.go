package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/capture"
	"rollcall/internal/config"
	"rollcall/internal/faceclient"
	"rollcall/internal/matcher"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/recognize"
	"rollcall/internal/roster"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

// The worker turns camera frames into attendance records: it consumes
// queued recognition requests, extracts face embeddings via the face
// service, and runs each embedding through the match-then-mark pipeline.
// With FRAME_SOURCE_URL set it also polls a kiosk camera directly.
func main() {
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	students := roster.NewPostgres(db.Client)
	records := attendance.NewPostgresRecords(db.Client)
	tracker := attendance.NewService(students, records, log)
	pipeline := recognize.New(
		students,
		matcher.New(cfg.MatchThreshold),
		tracker,
		session.NewCache(cfg.NotifyCooldown),
		log,
	)

	metrics.Register()

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if err := face.Init(ctx); err != nil {
		// Frames arriving before the models are loaded are dropped, not
		// queued; detection resumes once the service comes up.
		log.Warn().Err(err).Msg("face service not ready, will retry per frame")
	}

	handleFace := func(ctx context.Context, f faceclient.Face) {
		out, err := pipeline.Observe(ctx, f.Embedding)
		if err != nil {
			if errors.Is(err, matcher.ErrEmptyRoster) {
				log.Debug().Msg("no students enrolled, skipping face")
				return
			}
			log.Error().Err(err).Msg("recognition pipeline failed")
			metrics.RecognitionError("pipeline")
			return
		}
		if out.Matched && out.Created {
			log.Info().Str("student", out.Student.DisplayName()).Str("date", out.Record.Date).Msg("attendance marked")
		}
	}

	// Kiosk camera poll loop, if configured.
	if cfg.FrameSourceURL != "" {
		loop := capture.New(capture.NewURLSource(cfg.FrameSourceURL), face, handleFace, cfg.CaptureInterval, log)
		go func() {
			if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("capture loop stopped")
			}
		}()
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != queue.TypeRecognize {
			continue
		}
		processFrame(ctx, face, handleFace, msg.ImageURL, log)
	}

	log.Info().Msg("worker stopped")
}

func processFrame(ctx context.Context, face *faceclient.Client, handle capture.Handler, imageURL string, log zerolog.Logger) {
	if !face.Ready() {
		if err := face.Init(ctx); err != nil {
			log.Warn().Err(err).Str("image_url", imageURL).Msg("face service still not ready, frame dropped")
			metrics.RecognitionError("model_not_ready")
			return
		}
	}

	faces, err := face.Detect(ctx, imageURL)
	if err != nil {
		log.Warn().Err(err).Str("image_url", imageURL).Msg("face detection failed")
		metrics.RecognitionError("detect")
		return
	}
	metrics.FacesDetected(len(faces))

	for _, f := range faces {
		if ctx.Err() != nil {
			return
		}
		handle(ctx, f)
	}
}

func newLogger(cfg config.App) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "rollcall-worker").Logger()
}
