package matcher

import (
	"sync"

	"github.com/coder/hnsw"

	"rollcall/internal/model"
)

const indexMaxNeighbors = 16

// candidateOverfetch controls how many nearest references the index returns
// per query. Several references can belong to the same student, so the
// search overfetches to keep enough distinct candidates for exact rescoring.
const candidateOverfetch = 8

// Index is an approximate-nearest-neighbor accelerator over the roster's
// reference descriptors. It narrows the candidate set for large rosters; the
// returned candidates are always rescored with the exact linear rule, so
// threshold and tie-break semantics are identical to Matcher.Match.
type Index struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[int]
	students []model.Student
	owner    []int // graph node key -> index into students
}

// NewIndex builds an index from a roster snapshot.
func NewIndex(roster []model.Student) *Index {
	idx := &Index{}
	idx.Rebuild(roster)
	return idx
}

// Rebuild replaces the index contents with a fresh roster snapshot.
func (idx *Index) Rebuild(roster []model.Student) {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	students := make([]model.Student, len(roster))
	copy(students, roster)

	var owner []int
	key := 0
	for si, s := range students {
		for _, ref := range s.FaceDescriptors {
			if len(ref) == 0 {
				continue
			}
			g.Add(hnsw.MakeNode(key, ref))
			owner = append(owner, si)
			key++
		}
	}

	idx.mu.Lock()
	idx.graph = g
	idx.students = students
	idx.owner = owner
	idx.mu.Unlock()
}

// Count returns the number of indexed reference descriptors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.owner)
}

// Candidates returns up to k distinct students whose references are nearest
// to observed, in roster order so downstream tie-breaking stays stable.
func (idx *Index) Candidates(observed model.Descriptor, k int) []model.Student {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil || len(idx.owner) == 0 || k <= 0 {
		return nil
	}

	neighbors := idx.graph.Search(observed, k*candidateOverfetch)
	seen := make(map[int]bool, k)
	for _, n := range neighbors {
		if n.Key < 0 || n.Key >= len(idx.owner) {
			continue
		}
		seen[idx.owner[n.Key]] = true
		if len(seen) >= k {
			break
		}
	}

	out := make([]model.Student, 0, len(seen))
	for si := range idx.students {
		if seen[si] {
			out = append(out, idx.students[si])
		}
	}
	return out
}

// MatchWithIndex narrows the roster through idx before applying the exact
// match rule. Falls back to the full linear scan when the index is empty.
func (m *Matcher) MatchWithIndex(observed model.Descriptor, idx *Index, k int) (*Match, error) {
	if idx == nil || idx.Count() == 0 {
		return nil, ErrEmptyRoster
	}
	candidates := idx.Candidates(observed, k)
	if len(candidates) == 0 {
		return nil, ErrEmptyRoster
	}
	return m.Match(observed, candidates)
}
