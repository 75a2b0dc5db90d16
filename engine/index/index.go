// Package index writes points to a Qdrant-compatible vector index, over its
// REST API or over gRPC.
package index

import (
	"context"
	"fmt"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/pointid"
)

// Point is the unit of write: an id, its vector and a small payload.
type Point struct {
	ID      pointid.ID     `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Writer upserts points and returns only after the index acknowledged them.
// Re-sending a point with the same id overwrites it.
type Writer interface {
	Upsert(ctx context.Context, points []Point) error
}

// Store is a Writer that can also create its collection.
type Store interface {
	Writer
	EnsureCollection(ctx context.Context, dims int) error
}

// WriteError is a rejected or failed write. It matches
// domain.ErrWriteFailed under errors.Is.
type WriteError struct {
	Status int // HTTP status; 0 for transport failures
	Body   string
	Count  int
	Err    error
}

func (e *WriteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("index: upsert %d points: status %d: %s", e.Count, e.Status, e.Body)
	}
	return fmt.Sprintf("index: upsert %d points: %v", e.Count, e.Err)
}

func (e *WriteError) Is(target error) bool { return target == domain.ErrWriteFailed }

func (e *WriteError) Unwrap() error { return e.Err }
