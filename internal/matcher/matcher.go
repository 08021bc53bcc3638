package matcher

import (
	"errors"
	"math"

	"rollcall/internal/model"
)

// DefaultThreshold is the maximum Euclidean distance at which an observed
// embedding is considered the same person as a stored reference. It matches
// the calibrated default of the embedding model's distance space.
const DefaultThreshold = 0.6

// ErrEmptyRoster is returned when no student carries a reference descriptor.
var ErrEmptyRoster = errors.New("no students with enrolled face descriptors")

// Match is a successful identification.
type Match struct {
	Student  model.Student
	Distance float64
}

// Matcher identifies observed face embeddings against a roster.
type Matcher struct {
	threshold float64
}

// New creates a matcher; threshold <= 0 selects DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold reports the configured acceptance distance.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match returns the roster student whose nearest reference descriptor is
// closest to observed, or nil when the best distance is not under the
// threshold. A student's distance is the minimum over all of their
// references, so extra enrollment captures only ever help. Ties resolve to
// the student appearing first in roster order.
//
// Pure function over its inputs; the roster slice is not mutated.
func (m *Matcher) Match(observed model.Descriptor, roster []model.Student) (*Match, error) {
	best, enrolled := m.scan(observed, roster)
	if !enrolled {
		return nil, ErrEmptyRoster
	}
	return best, nil
}

func (m *Matcher) scan(observed model.Descriptor, roster []model.Student) (*Match, bool) {
	var best *Match
	enrolled := false
	for _, s := range roster {
		d, ok := studentDistance(observed, s)
		if !ok {
			continue
		}
		enrolled = true
		if best == nil || d < best.Distance {
			best = &Match{Student: s, Distance: d}
		}
	}
	if best == nil || best.Distance >= m.threshold {
		return nil, enrolled
	}
	return best, enrolled
}

// studentDistance returns the minimum distance from observed to any of the
// student's references. References with mismatched dimensionality are
// skipped; ok is false when the student has no usable reference.
func studentDistance(observed model.Descriptor, s model.Student) (float64, bool) {
	min, ok := 0.0, false
	for _, ref := range s.FaceDescriptors {
		if len(ref) != len(observed) || len(ref) == 0 {
			continue
		}
		d := EuclideanDistance(observed, ref)
		if !ok || d < min {
			min, ok = d, true
		}
	}
	return min, ok
}

// EuclideanDistance computes the L2 distance between two equal-length
// vectors. Returns +Inf for mismatched or empty input.
func EuclideanDistance(a, b model.Descriptor) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
