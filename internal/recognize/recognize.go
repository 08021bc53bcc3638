// Package recognize wires the matcher, the attendance tracker and the
// session cache into the single pipeline both the API and the worker run
// for every observed face.
package recognize

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/matcher"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/session"
)

// indexRosterCutoff is the roster size above which candidate pre-selection
// through the vector index replaces the full linear scan. Small rosters
// scan faster than they build graphs.
const indexRosterCutoff = 32

// indexCandidates is how many distinct students the index yields for exact
// rescoring per observation.
const indexCandidates = 8

// Outcome reports what one observed embedding led to.
type Outcome struct {
	Matched  bool                    `json:"matched"`
	Student  *model.Student          `json:"student,omitempty"`
	Distance float64                 `json:"distance,omitempty"`
	Created  bool                    `json:"created"`
	Notice   string                  `json:"notice"`
	Record   *model.AttendanceRecord `json:"record,omitempty"`
}

// Service runs match-then-mark for observed embeddings.
type Service struct {
	roster   roster.Repository
	matcher  *matcher.Matcher
	tracker  *attendance.Service
	sessions *session.Cache
	log      zerolog.Logger

	idxMu      sync.Mutex
	index      *matcher.Index
	indexDirty bool
}

// New creates the pipeline.
func New(students roster.Repository, m *matcher.Matcher, tracker *attendance.Service, sessions *session.Cache, log zerolog.Logger) *Service {
	return &Service{
		roster:     students,
		matcher:    m,
		tracker:    tracker,
		sessions:   sessions,
		log:        log,
		indexDirty: true,
	}
}

// Observe matches one embedding against the current roster and, on a hit,
// marks attendance and consults the session cache for the notice to show.
// An empty roster is reported as ErrEmptyRoster so the caller can explain
// why nothing will ever match.
func (s *Service) Observe(ctx context.Context, observed model.Descriptor) (Outcome, error) {
	students, err := s.roster.List(ctx)
	if err != nil {
		return Outcome{}, err
	}

	m, err := s.match(observed, students)
	if err != nil {
		return Outcome{}, err
	}
	if m == nil {
		metrics.MatchOutcome(false, 0)
		return Outcome{Notice: session.NoticeSuppressed.String()}, nil
	}
	metrics.MatchOutcome(true, m.Distance)

	rec, created, err := s.tracker.Mark(ctx, m.Student.ID)
	if err != nil {
		metrics.RecognitionError("mark")
		return Outcome{}, err
	}
	metrics.MarkOutcome(created)

	notice := s.sessions.Observe(m.Student.ID, created)
	student := m.Student
	out := Outcome{
		Matched:  true,
		Student:  &student,
		Distance: m.Distance,
		Created:  created,
		Notice:   notice.String(),
	}
	if created {
		out.Record = &rec
	}
	return out, nil
}

// match picks the scan strategy by roster size. Index candidates are always
// rescored with the exact rule, so both paths accept and tie-break
// identically.
func (s *Service) match(observed model.Descriptor, students []model.Student) (*matcher.Match, error) {
	if len(students) < indexRosterCutoff {
		return s.matcher.Match(observed, students)
	}
	return s.matcher.MatchWithIndex(observed, s.ensureIndex(students), indexCandidates)
}

// ensureIndex returns an index covering the given roster snapshot,
// rebuilding when the roster was invalidated or the reference count drifted
// (a writer in another process changed enrollment).
func (s *Service) ensureIndex(students []model.Student) *matcher.Index {
	refs := 0
	for _, st := range students {
		refs += len(st.FaceDescriptors)
	}

	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	switch {
	case s.index == nil:
		s.index = matcher.NewIndex(students)
	case s.indexDirty || s.index.Count() != refs:
		s.index.Rebuild(students)
	default:
		return s.index
	}
	s.indexDirty = false
	s.log.Debug().Int("students", len(students)).Int("references", refs).Msg("roster index rebuilt")
	return s.index
}

// InvalidateIndex marks the index stale after local roster mutation; the
// next observation above the cutoff rebuilds it.
func (s *Service) InvalidateIndex() {
	s.idxMu.Lock()
	s.indexDirty = true
	s.idxMu.Unlock()
}

// ResetSession clears session notification state; called when the
// attendance view closes or reopens.
func (s *Service) ResetSession() {
	s.sessions.Reset()
}
