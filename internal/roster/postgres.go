package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"rollcall/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresRepository persists the roster in Postgres, with descriptors in a
// pgvector column.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgres creates a roster repository over an open connection.
func NewPostgres(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the student and all reference descriptors in one
// transaction so a failed descriptor write never leaves a partial record.
func (r *PostgresRepository) Create(ctx context.Context, s *model.Student) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.RegistrationDate.IsZero() {
		s.RegistrationDate = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (id, student_id, first_name, last_name, email, phone_number, course, photo_url, registered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.ID, s.StudentID, s.FirstName, s.LastName, s.Email, s.PhoneNumber, s.Course, s.PhotoURL, s.RegistrationDate)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateStudentID
		}
		return err
	}

	for _, ref := range s.FaceDescriptors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_descriptors (student_id, embedding) VALUES ($1, $2)
		`, s.ID, pgvector.NewVector(ref)); err != nil {
			return fmt.Errorf("insert descriptor: %w", err)
		}
	}

	return tx.Commit()
}

// List returns all students with descriptors, oldest registration first.
func (r *PostgresRepository) List(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, first_name, last_name, email, phone_number, course, photo_url, registered_at
		FROM students
		ORDER BY registered_at, student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	byID := map[string]int{}
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.StudentID, &s.FirstName, &s.LastName, &s.Email, &s.PhoneNumber, &s.Course, &s.PhotoURL, &s.RegistrationDate); err != nil {
			return nil, err
		}
		byID[s.ID] = len(students)
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	drows, err := r.db.QueryContext(ctx, `
		SELECT student_id, embedding FROM face_descriptors ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer drows.Close()

	for drows.Next() {
		var sid string
		var vec pgvector.Vector
		if err := drows.Scan(&sid, &vec); err != nil {
			return nil, err
		}
		if i, ok := byID[sid]; ok {
			students[i].FaceDescriptors = append(students[i].FaceDescriptors, vec.Slice())
		}
	}
	return students, drows.Err()
}

// Get returns a single student with descriptors.
func (r *PostgresRepository) Get(ctx context.Context, id string) (model.Student, error) {
	var s model.Student
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, first_name, last_name, email, phone_number, course, photo_url, registered_at
		FROM students WHERE id = $1
	`, id).Scan(&s.ID, &s.StudentID, &s.FirstName, &s.LastName, &s.Email, &s.PhoneNumber, &s.Course, &s.PhotoURL, &s.RegistrationDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Student{}, ErrStudentNotFound
		}
		return model.Student{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT embedding FROM face_descriptors WHERE student_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return model.Student{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return model.Student{}, err
		}
		s.FaceDescriptors = append(s.FaceDescriptors, vec.Slice())
	}
	return s, rows.Err()
}

// AppendDescriptors stores additional re-enrollment captures.
func (r *PostgresRepository) AppendDescriptors(ctx context.Context, id string, refs []model.Descriptor) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_descriptors (student_id, embedding) VALUES ($1, $2)
		`, id, pgvector.NewVector(ref)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes the student row; descriptors and attendance records follow
// via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
