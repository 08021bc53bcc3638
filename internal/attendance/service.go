package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rollcall/internal/model"
	"rollcall/internal/roster"
)

// Service converts successful face matches into durable attendance facts,
// enforcing at-most-one-record-per-(student, day).
type Service struct {
	roster  roster.Repository
	records Records
	log     zerolog.Logger
	now     func() time.Time

	// Serializes Mark per student so the check-then-create sequence cannot
	// race within this process. The repository's uniqueness constraint
	// covers concurrent writers elsewhere.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a tracker over the given repositories.
func NewService(students roster.Repository, records Records, log zerolog.Logger) *Service {
	return &Service{
		roster:  students,
		records: records,
		log:     log,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) studentLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Mark records the student as present for today's local calendar date.
// created reports whether this call produced a new record (false when the
// student was already marked today) — that distinction drives the caller's
// "Marked as Present" vs "Already Marked" notice, nothing else.
//
// An unknown studentID is a silent no-op: marking races with student
// deletion, and a face matched a moment before its student was removed
// should not fail the capture session.
func (s *Service) Mark(ctx context.Context, studentID string) (model.AttendanceRecord, bool, error) {
	if studentID == "" {
		return model.AttendanceRecord{}, false, nil
	}
	if _, err := s.roster.Get(ctx, studentID); err != nil {
		if errors.Is(err, roster.ErrStudentNotFound) {
			s.log.Debug().Str("student_id", studentID).Msg("mark skipped: unknown student")
			return model.AttendanceRecord{}, false, nil
		}
		return model.AttendanceRecord{}, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	l := s.studentLock(studentID)
	l.Lock()
	defer l.Unlock()

	now := s.now()
	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Date:      model.DateOf(now),
		Timestamp: now,
		Present:   true,
	}

	created, err := s.records.Insert(ctx, rec)
	if err != nil {
		// One immediate retry; further retries are the caller's decision.
		created, err = s.records.Insert(ctx, rec)
	}
	if err != nil {
		return model.AttendanceRecord{}, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !created {
		s.log.Debug().Str("student_id", studentID).Str("date", rec.Date).Msg("already marked today")
		return model.AttendanceRecord{}, false, nil
	}
	s.log.Info().Str("student_id", studentID).Str("date", rec.Date).Msg("attendance marked")
	return rec, true, nil
}

// List returns all records.
func (s *Service) List(ctx context.Context) ([]model.AttendanceRecord, error) {
	recs, err := s.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return recs, nil
}

// ListByDate returns the records for one calendar day (YYYY-MM-DD).
func (s *Service) ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	recs, err := s.records.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return recs, nil
}

// ListByStudent returns one student's attendance history.
func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	recs, err := s.records.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return recs, nil
}

// DeleteRecord removes one record by id.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Clear removes every attendance record.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.records.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// DeleteStudent removes the student and all of their attendance records.
// The record sweep runs even when Postgres already cascaded it, so the
// contract holds for every Records backend.
func (s *Service) DeleteStudent(ctx context.Context, studentID string) error {
	if err := s.roster.Delete(ctx, studentID); err != nil {
		if errors.Is(err, roster.ErrStudentNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := s.records.DeleteByStudent(ctx, studentID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// The lock entry would otherwise live for the process lifetime. A Mark
	// racing this delete at worst recreates it and then no-ops on the
	// missing student.
	s.mu.Lock()
	delete(s.locks, studentID)
	s.mu.Unlock()

	s.log.Info().Str("student_id", studentID).Msg("student deleted with attendance history")
	return nil
}
