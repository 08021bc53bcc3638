package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance session time without sleeping.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(cooldown time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	c := NewCache(cooldown)
	c.now = func() time.Time { return clock.t }
	return c, clock
}

func TestFirstSightNotifies(t *testing.T) {
	c, _ := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	require.Equal(t, NoticeAlreadyMarked, c.Observe("s2", false))
}

func TestResightWithinCooldownSuppressed(t *testing.T) {
	c, clock := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	clock.advance(3 * time.Second)
	require.Equal(t, NoticeSuppressed, c.Observe("s1", false))
	clock.advance(3 * time.Second)
	require.Equal(t, NoticeSuppressed, c.Observe("s1", false))
}

func TestResightAfterCooldownIsDuplicatePunch(t *testing.T) {
	c, clock := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	clock.advance(11 * time.Second)
	require.Equal(t, NoticeDuplicatePunch, c.Observe("s1", false))

	// The duplicate punch restarted the window.
	clock.advance(2 * time.Second)
	require.Equal(t, NoticeSuppressed, c.Observe("s1", false))
}

func TestCreatedAfterCooldownStillMarked(t *testing.T) {
	// Session spanning midnight: a new day's record can be created for a
	// student the session has seen before.
	c, clock := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	clock.advance(time.Hour)
	require.Equal(t, NoticeMarked, c.Observe("s1", true))
}

func TestCreatedWithinCooldownStillMarked(t *testing.T) {
	// The cooldown silences repeat sightings, never a fresh record: a
	// student sighted seconds before midnight and again just after gets
	// the new day's notice.
	c, clock := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	clock.advance(2 * time.Second)
	require.Equal(t, NoticeMarked, c.Observe("s1", true))

	// The notification restarted the window for non-creating sightings.
	clock.advance(2 * time.Second)
	require.Equal(t, NoticeSuppressed, c.Observe("s1", false))
}

func TestResetForgetsSession(t *testing.T) {
	c, _ := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	c.Reset()
	require.Equal(t, NoticeAlreadyMarked, c.Observe("s1", false))
}

func TestStudentsTrackedIndependently(t *testing.T) {
	c, clock := newTestCache(10 * time.Second)

	require.Equal(t, NoticeMarked, c.Observe("s1", true))
	clock.advance(5 * time.Second)
	require.Equal(t, NoticeMarked, c.Observe("s2", true))
	require.Equal(t, NoticeSuppressed, c.Observe("s1", false))
}
