package roster

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
)

// MemoryRepository is a mutex-guarded in-memory roster for tests and dev.
type MemoryRepository struct {
	mu       sync.RWMutex
	students []model.Student
}

// NewMemory creates an empty in-memory roster.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, s *model.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.students {
		if existing.StudentID == s.StudentID {
			return ErrDuplicateStudentID
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.RegistrationDate.IsZero() {
		s.RegistrationDate = time.Now().UTC()
	}
	r.students = append(r.students, cloneStudent(*s))
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]model.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Student, len(r.students))
	for i, s := range r.students {
		out[i] = cloneStudent(s)
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (model.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.students {
		if s.ID == id {
			return cloneStudent(s), nil
		}
	}
	return model.Student{}, ErrStudentNotFound
}

func (r *MemoryRepository) AppendDescriptors(_ context.Context, id string, refs []model.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.students {
		if r.students[i].ID == id {
			for _, ref := range refs {
				cp := make(model.Descriptor, len(ref))
				copy(cp, ref)
				r.students[i].FaceDescriptors = append(r.students[i].FaceDescriptors, cp)
			}
			return nil
		}
	}
	return ErrStudentNotFound
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.students {
		if r.students[i].ID == id {
			r.students = append(r.students[:i], r.students[i+1:]...)
			return nil
		}
	}
	return ErrStudentNotFound
}

// cloneStudent copies descriptor slices so callers can't mutate stored state.
func cloneStudent(s model.Student) model.Student {
	if len(s.FaceDescriptors) == 0 {
		return s
	}
	refs := make([]model.Descriptor, len(s.FaceDescriptors))
	for i, d := range s.FaceDescriptors {
		cp := make(model.Descriptor, len(d))
		copy(cp, d)
		refs[i] = cp
	}
	s.FaceDescriptors = refs
	return s
}
