package index

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store keyed by point id. It backs dry runs.
type Memory struct {
	mu      sync.Mutex
	points  map[string]Point
	upserts int
	dims    int
	// FailNext, when > 0, makes that many following Upsert calls fail.
	FailNext int
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]Point)}
}

// Upsert implements Writer.
func (m *Memory) Upsert(ctx context.Context, points []Point) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Count: len(points), Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext > 0 {
		m.FailNext--
		return &WriteError{Status: 503, Body: "injected failure", Count: len(points)}
	}
	m.upserts++
	for _, p := range points {
		m.points[p.ID.String()] = p
	}
	return nil
}

// EnsureCollection implements Store.
func (m *Memory) EnsureCollection(_ context.Context, dims int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dims == 0 {
		m.dims = dims
	}
	return nil
}

// IDs returns the stored ids, sorted.
func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.points))
	for id := range m.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the point stored under id.
func (m *Memory) Get(id string) (Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	return p, ok
}

// Len returns the number of stored points.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

// Upserts returns how many Upsert calls succeeded.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
