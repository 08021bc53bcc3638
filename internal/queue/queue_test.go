package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, RecognizeMessage("http://frames/1.jpg")))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		require.Equal(t, TypeRecognize, msg.Type)
		require.Equal(t, "http://frames/1.jpg", msg.ImageURL)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestInMemoryPublishRespectsCancellation(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, RecognizeMessage("a")))

	cancel()
	err := q.Publish(ctx, RecognizeMessage("b")) // buffer full, ctx done
	require.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryConsumeClosesOnCancelWithUnreadMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := NewInMemory(1)
	require.NoError(t, q.Publish(ctx, RecognizeMessage("a")))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	// Nothing reads the message; the forwarder is blocked mid-send when the
	// context goes away. The channel must still close.
	time.Sleep(20 * time.Millisecond)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("consume channel did not close after cancellation")
		}
	}
}
