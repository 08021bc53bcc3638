package recognize

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/matcher"
	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/session"
)

func newPipeline(t *testing.T) (*Service, *roster.MemoryRepository, *attendance.MemoryRecords) {
	t.Helper()
	students := roster.NewMemory()
	records := attendance.NewMemoryRecords()
	tracker := attendance.NewService(students, records, zerolog.Nop())
	svc := New(students, matcher.New(0), tracker, session.NewCache(10*time.Second), zerolog.Nop())
	return svc, students, records
}

func TestObserveMatchMarksOnce(t *testing.T) {
	ctx := context.Background()
	svc, students, records := newPipeline(t)

	ref := model.Descriptor{0.1, 0.2, 0.3}
	s := model.Student{StudentID: "A1", FirstName: "Jane", LastName: "Doe",
		FaceDescriptors: []model.Descriptor{ref}}
	require.NoError(t, students.Create(ctx, &s))

	out, err := svc.Observe(ctx, ref)
	require.NoError(t, err)
	require.True(t, out.Matched)
	require.True(t, out.Created)
	require.Equal(t, session.NoticeMarked.String(), out.Notice)
	require.Equal(t, s.ID, out.Student.ID)
	require.Equal(t, model.DateOf(time.Now()), out.Record.Date)

	// Same face again within the cooldown: no new record, no notice.
	out, err = svc.Observe(ctx, ref)
	require.NoError(t, err)
	require.True(t, out.Matched)
	require.False(t, out.Created)
	require.Equal(t, session.NoticeSuppressed.String(), out.Notice)

	all, err := records.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestObserveBeyondThresholdCreatesNothing(t *testing.T) {
	ctx := context.Background()
	svc, students, records := newPipeline(t)

	s := model.Student{StudentID: "A1", FirstName: "Jane", LastName: "Doe",
		FaceDescriptors: []model.Descriptor{{0, 0, 0}}}
	require.NoError(t, students.Create(ctx, &s))

	out, err := svc.Observe(ctx, model.Descriptor{0.9, 0, 0})
	require.NoError(t, err)
	require.False(t, out.Matched)
	require.Nil(t, out.Student)
	require.Nil(t, out.Record)

	all, err := records.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestObserveEmptyRoster(t *testing.T) {
	svc, _, _ := newPipeline(t)
	_, err := svc.Observe(context.Background(), model.Descriptor{1, 2, 3})
	require.ErrorIs(t, err, matcher.ErrEmptyRoster)
}

// farDescriptor gives student n a reference far from every other student's,
// so only the exact observation matches it.
func farDescriptor(n int) model.Descriptor {
	d := make(model.Descriptor, 8)
	d[0] = float32(n) * 10
	return d
}

func TestObserveLargeRosterRoutesThroughIndex(t *testing.T) {
	ctx := context.Background()
	svc, students, records := newPipeline(t)

	enrolled := make([]model.Student, 0, indexRosterCutoff+8)
	for i := 0; i < indexRosterCutoff+8; i++ {
		s := model.Student{StudentID: "A" + string(rune('0'+i%10)) + string(rune('A'+i/10)),
			FirstName: "Jane", LastName: "Doe",
			FaceDescriptors: []model.Descriptor{farDescriptor(i)}}
		require.NoError(t, students.Create(ctx, &s))
		enrolled = append(enrolled, s)
	}

	target := enrolled[indexRosterCutoff/2]
	out, err := svc.Observe(ctx, target.FaceDescriptors[0])
	require.NoError(t, err)
	require.True(t, out.Matched)
	require.Equal(t, target.ID, out.Student.ID)
	require.True(t, out.Created)

	// The roster is above the cutoff, so the observation built the index.
	svc.idxMu.Lock()
	idx := svc.index
	svc.idxMu.Unlock()
	require.NotNil(t, idx)
	require.Equal(t, len(enrolled), idx.Count())

	all, err := records.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestInvalidateIndexPicksUpNewEnrollment(t *testing.T) {
	ctx := context.Background()
	svc, students, _ := newPipeline(t)

	enrolled := make([]model.Student, 0, indexRosterCutoff+1)
	for i := 0; i <= indexRosterCutoff; i++ {
		s := model.Student{StudentID: "B" + string(rune('0'+i%10)) + string(rune('A'+i/10)),
			FirstName: "Jane", LastName: "Doe",
			FaceDescriptors: []model.Descriptor{farDescriptor(i)}}
		require.NoError(t, students.Create(ctx, &s))
		enrolled = append(enrolled, s)
	}
	_, err := svc.Observe(ctx, farDescriptor(0))
	require.NoError(t, err)

	// Swap one student for another with the same descriptor count, so only
	// invalidation (not reference-count drift) can refresh the index — the
	// handler invalidates after every roster mutation.
	require.NoError(t, students.Delete(ctx, enrolled[0].ID))
	late := model.Student{StudentID: "LATE", FirstName: "Max", LastName: "Roe",
		FaceDescriptors: []model.Descriptor{farDescriptor(1000)}}
	require.NoError(t, students.Create(ctx, &late))
	svc.InvalidateIndex()

	out, err := svc.Observe(ctx, farDescriptor(1000))
	require.NoError(t, err)
	require.True(t, out.Matched)
	require.Equal(t, late.ID, out.Student.ID)
}

func TestResetSessionReenablesNotices(t *testing.T) {
	ctx := context.Background()
	svc, students, _ := newPipeline(t)

	ref := model.Descriptor{0.1, 0.2, 0.3}
	s := model.Student{StudentID: "A1", FirstName: "Jane", LastName: "Doe",
		FaceDescriptors: []model.Descriptor{ref}}
	require.NoError(t, students.Create(ctx, &s))

	out, err := svc.Observe(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, session.NoticeMarked.String(), out.Notice)

	svc.ResetSession()
	out, err = svc.Observe(ctx, ref)
	require.NoError(t, err)
	require.False(t, out.Created)
	require.Equal(t, session.NoticeAlreadyMarked.String(), out.Notice)
}
