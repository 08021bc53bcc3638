package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and runs the
// schema migration. The vector extension backs face descriptor storage.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return &DB{Client: db}, err
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS students (
		id            UUID PRIMARY KEY,
		student_id    TEXT UNIQUE NOT NULL,
		first_name    TEXT NOT NULL,
		last_name     TEXT NOT NULL,
		email         TEXT NOT NULL DEFAULT '',
		phone_number  TEXT NOT NULL DEFAULT '',
		course        TEXT NOT NULL DEFAULT '',
		photo_url     TEXT NOT NULL DEFAULT '',
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS face_descriptors (
		id         BIGSERIAL PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		embedding  vector(128) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id         UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		day        TEXT NOT NULL,
		marked_at  TIMESTAMPTZ NOT NULL,
		present    BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (student_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_descriptors_student ON face_descriptors(student_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_day      ON attendance_records(day);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
