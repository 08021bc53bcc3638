// Package roster stores the enrolled students and their reference face
// descriptors. The repository interface keeps one chosen persistence
// backend (Postgres) behind it, with an in-memory implementation for tests
// and single-node dev setups.
package roster

import (
	"context"
	"errors"

	"rollcall/internal/model"
)

// ErrDuplicateStudentID is returned when registering a studentId that
// already exists.
var ErrDuplicateStudentID = errors.New("student id already registered")

// ErrStudentNotFound is returned for operations on an unknown student.
var ErrStudentNotFound = errors.New("student not found")

// Repository persists students and their reference descriptors.
type Repository interface {
	// Create registers a student, assigning ID and RegistrationDate when
	// unset. Fails with ErrDuplicateStudentID on a studentId conflict and
	// never partially persists the student.
	Create(ctx context.Context, s *model.Student) error

	// List returns all students with their descriptors, in registration
	// order. Roster order is the matcher's tie-break order.
	List(ctx context.Context) ([]model.Student, error)

	// Get returns one student by opaque id, or ErrStudentNotFound.
	Get(ctx context.Context, id string) (model.Student, error)

	// AppendDescriptors adds re-enrollment captures to an existing student.
	AppendDescriptors(ctx context.Context, id string, refs []model.Descriptor) error

	// Delete removes a student. The attendance cascade is coordinated by
	// the attendance service.
	Delete(ctx context.Context, id string) error
}
