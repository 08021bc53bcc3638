package attendance

import (
	"context"
	"sync"

	"rollcall/internal/model"
)

// MemoryRecords is a mutex-guarded in-memory record store for tests and dev.
type MemoryRecords struct {
	mu      sync.Mutex
	records []model.AttendanceRecord
}

// NewMemoryRecords creates an empty record store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{}
}

func (m *MemoryRecords) Insert(_ context.Context, rec model.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.StudentID == rec.StudentID && existing.Date == rec.Date {
			return false, nil
		}
	}
	m.records = append(m.records, rec)
	return true, nil
}

func (m *MemoryRecords) List(_ context.Context) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AttendanceRecord(nil), m.records...), nil
}

func (m *MemoryRecords) ListByDate(_ context.Context, date string) ([]model.AttendanceRecord, error) {
	return m.filter(func(r model.AttendanceRecord) bool { return r.Date == date })
}

func (m *MemoryRecords) ListByStudent(_ context.Context, studentID string) ([]model.AttendanceRecord, error) {
	return m.filter(func(r model.AttendanceRecord) bool { return r.StudentID == studentID })
}

func (m *MemoryRecords) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryRecords) DeleteByStudent(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if r.StudentID != studentID {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *MemoryRecords) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *MemoryRecords) filter(keep func(model.AttendanceRecord) bool) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttendanceRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
