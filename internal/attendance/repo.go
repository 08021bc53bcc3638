package attendance

import (
	"context"
	"database/sql"
	"errors"

	"rollcall/internal/model"
)

// ErrPersistence marks storage I/O failures so callers can distinguish them
// from validation problems. Wrapped errors satisfy errors.Is(err, ErrPersistence).
var ErrPersistence = errors.New("attendance storage failure")

// Records persists attendance facts. The at-most-one-per-(student, day)
// invariant is enforced here: Insert reports whether it created a new record
// or observed a pre-existing one for the same key.
type Records interface {
	Insert(ctx context.Context, rec model.AttendanceRecord) (created bool, err error)
	List(ctx context.Context) ([]model.AttendanceRecord, error)
	ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteByStudent(ctx context.Context, studentID string) error
	Clear(ctx context.Context) error
}

// PostgresRecords stores attendance records in Postgres. The
// (student_id, day) unique constraint makes Insert atomic even across
// concurrent writers.
type PostgresRecords struct {
	db *sql.DB
}

// NewPostgresRecords creates a record repository over an open connection.
func NewPostgresRecords(db *sql.DB) *PostgresRecords {
	return &PostgresRecords{db: db}
}

// Insert writes the record unless one already exists for the same
// (student, day). ON CONFLICT DO NOTHING keeps check-then-create atomic.
func (r *PostgresRecords) Insert(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, day, marked_at, present)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (student_id, day) DO NOTHING
	`, rec.ID, rec.StudentID, rec.Date, rec.Timestamp, rec.Present)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all records, newest first.
func (r *PostgresRecords) List(ctx context.Context) ([]model.AttendanceRecord, error) {
	return r.query(ctx, `
		SELECT id, student_id, day, marked_at, present
		FROM attendance_records ORDER BY marked_at DESC
	`)
}

// ListByDate returns the records for one calendar day.
func (r *PostgresRecords) ListByDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	return r.query(ctx, `
		SELECT id, student_id, day, marked_at, present
		FROM attendance_records WHERE day = $1 ORDER BY marked_at
	`, date)
}

// ListByStudent returns one student's records, oldest first.
func (r *PostgresRecords) ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	return r.query(ctx, `
		SELECT id, student_id, day, marked_at, present
		FROM attendance_records WHERE student_id = $1 ORDER BY day
	`, studentID)
}

// Delete removes one record by id.
func (r *PostgresRecords) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	return err
}

// DeleteByStudent removes all records referencing a student.
func (r *PostgresRecords) DeleteByStudent(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE student_id = $1`, studentID)
	return err
}

// Clear removes every record.
func (r *PostgresRecords) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records`)
	return err
}

func (r *PostgresRecords) query(ctx context.Context, q string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Date, &rec.Timestamp, &rec.Present); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
