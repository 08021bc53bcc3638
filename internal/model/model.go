package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DescriptorDim is the embedding length produced by the face model.
const DescriptorDim = 128

// Descriptor is one face embedding vector.
type Descriptor []float32

// Validate checks length and numeric-ness. Descriptors arrive from the
// browser as loosely typed JSON, so this runs at the persistence boundary.
func (d Descriptor) Validate(dim int) error {
	if len(d) != dim {
		return fmt.Errorf("descriptor has %d elements, want %d", len(d), dim)
	}
	for i, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("descriptor element %d is not finite", i)
		}
	}
	return nil
}

// Student is a registered student with one or more reference descriptors.
type Student struct {
	ID               string       `json:"id"`
	StudentID        string       `json:"studentId"`
	FirstName        string       `json:"firstName"`
	LastName         string       `json:"lastName"`
	Email            string       `json:"email"`
	PhoneNumber      string       `json:"phoneNumber"`
	Course           string       `json:"course"`
	PhotoURL         string       `json:"photoUrl,omitempty"`
	FaceDescriptors  []Descriptor `json:"faceDescriptors"`
	RegistrationDate time.Time    `json:"registrationDate"`
}

// DisplayName renders "First Last" for lists and exports.
func (s Student) DisplayName() string {
	return s.FirstName + " " + s.LastName
}

// Validate enforces the registration invariants. A student must carry at
// least one valid reference descriptor once registration completes.
func (s Student) Validate() error {
	if s.StudentID == "" || s.FirstName == "" || s.LastName == "" {
		return errors.New("studentId, firstName and lastName are required")
	}
	if len(s.FaceDescriptors) == 0 {
		return errors.New("at least one face descriptor is required")
	}
	for _, d := range s.FaceDescriptors {
		if err := d.Validate(DescriptorDim); err != nil {
			return err
		}
	}
	return nil
}

// AttendanceRecord is one presence fact for a (student, calendar day) pair.
// Absence is represented by record absence, not Present=false.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	Date      string    `json:"date"` // local calendar day, YYYY-MM-DD
	Timestamp time.Time `json:"timestamp"`
	Present   bool      `json:"present"`
}

// DateOf renders t as the local calendar day key used for deduplication.
func DateOf(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
