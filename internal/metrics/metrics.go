// Package metrics exposes the Prometheus collectors for the recognition
// pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	facesDetected     prometheus.Counter
	matchesTotal      *prometheus.CounterVec
	marksTotal        *prometheus.CounterVec
	recognitionErrors *prometheus.CounterVec
	matchDistance     prometheus.Histogram
)

// Register initialises the collectors with the default registry. Idempotent.
func Register() {
	registerOnce.Do(func() {
		facesDetected = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_faces_detected_total",
			Help: "Total number of faces returned by the extraction service.",
		})

		matchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_matches_total",
			Help: "Face match outcomes against the enrolled roster.",
		}, []string{"outcome"}) // matched | unmatched

		marksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_attendance_marks_total",
			Help: "Attendance marking outcomes.",
		}, []string{"outcome"}) // created | duplicate

		recognitionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_recognition_errors_total",
			Help: "Errors in the recognition pipeline by stage.",
		}, []string{"stage"}) // extract | match | mark

		matchDistance = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_match_distance",
			Help:    "Euclidean distance of accepted matches.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		})

		prometheus.MustRegister(facesDetected, matchesTotal, marksTotal, recognitionErrors, matchDistance)
	})
}

// FacesDetected counts faces returned by extraction.
func FacesDetected(n int) {
	Register()
	facesDetected.Add(float64(n))
}

// MatchOutcome records one match attempt.
func MatchOutcome(matched bool, distance float64) {
	Register()
	if matched {
		matchesTotal.WithLabelValues("matched").Inc()
		matchDistance.Observe(distance)
		return
	}
	matchesTotal.WithLabelValues("unmatched").Inc()
}

// MarkOutcome records whether marking created a new record.
func MarkOutcome(created bool) {
	Register()
	if created {
		marksTotal.WithLabelValues("created").Inc()
		return
	}
	marksTotal.WithLabelValues("duplicate").Inc()
}

// RecognitionError counts a pipeline failure at the given stage.
func RecognitionError(stage string) {
	Register()
	recognitionErrors.WithLabelValues(stage).Inc()
}
