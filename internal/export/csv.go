// Package export renders attendance records as downloadable CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"rollcall/internal/model"
)

var header = []string{"Date", "Time", "Student ID", "Student Name", "Present"}

// Filename returns the download name for an export of the given day.
func Filename(date string) string {
	if date == "" {
		date = model.DateOf(time.Now())
	}
	return fmt.Sprintf("attendance_export_%s.csv", date)
}

// WriteCSV writes one row per record with a header row. Student names come
// from the roster; records whose student no longer exists render "Unknown".
// encoding/csv applies standard quoting, so names and courses containing
// commas or quotes survive a round trip.
func WriteCSV(w io.Writer, records []model.AttendanceRecord, students []model.Student) error {
	names := make(map[string]string, len(students))
	ids := make(map[string]string, len(students))
	for _, s := range students {
		names[s.ID] = s.DisplayName()
		ids[s.ID] = s.StudentID
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		name, ok := names[rec.StudentID]
		if !ok {
			name = "Unknown"
		}
		id, ok := ids[rec.StudentID]
		if !ok {
			id = rec.StudentID
		}
		present := "Yes"
		if !rec.Present {
			present = "No"
		}
		row := []string{
			rec.Date,
			rec.Timestamp.Local().Format("15:04:05"),
			id,
			name,
			present,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
