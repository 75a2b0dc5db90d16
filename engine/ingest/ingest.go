// Package ingest drives records through identifier resolution, embedding and
// index writes. Two strategies share the per-record stages: Batch writes
// groups of points and aborts on the first failure, PerItem writes one point
// at a time with retries and a durable run log.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/index"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/pointid"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/runlog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/fn"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/metrics"
)

// Embedder resolves text to a vector. *embed.Chain implements it.
type Embedder interface {
	Resolve(ctx context.Context, text string) ([]float32, error)
}

// IDResolver maps a record key to a point id. *pointid.Resolver implements it.
type IDResolver interface {
	Resolve(key any) pointid.ID
}

// Deps holds the external dependencies of both strategies.
type Deps struct {
	Embedder Embedder
	Index    index.Writer
	// IDs defaults to a pointid.Resolver logging to Logger.
	IDs IDResolver
	// Events defaults to runlog.Discard.
	Events  runlog.Sink
	Metrics *metrics.Registry
	Logger  *slog.Logger
	// EnsureCollection, if set, is called with the dimensionality of the
	// first vector before the first write. It is retried on the next write
	// until it succeeds once.
	EnsureCollection func(ctx context.Context, dims int) error
	// NewRunID defaults to a random UUID.
	NewRunID func() string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.IDs == nil {
		d.IDs = pointid.NewResolver(d.Logger)
	}
	if d.Events == nil {
		d.Events = runlog.Discard
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Item is one record ready for ingestion. Index is its 1-based position in
// the input.
type Item struct {
	Index   int
	Key     any
	Text    string
	Payload map[string]any
}

// Keyed is an Item with its resolved point id.
type Keyed struct {
	Item
	ID pointid.ID
}

// --- Pipeline Stages ---

// NewResolveID creates the stage assigning a point id to an item.
func NewResolveID(ids IDResolver) fn.Stage[Item, Keyed] {
	return fn.MapStage(func(it Item) Keyed {
		return Keyed{Item: it, ID: ids.Resolve(it.Key)}
	})
}

// NewEmbed creates the stage turning a Keyed item into a point. An empty
// vector fails the stage.
func NewEmbed(e Embedder) fn.Stage[Keyed, index.Point] {
	return func(ctx context.Context, k Keyed) fn.Result[index.Point] {
		vec, err := e.Resolve(ctx, k.Text)
		if err != nil {
			return fn.Err[index.Point](err)
		}
		if err := domain.ValidateVector(vec, 0); err != nil {
			return fn.Errf[index.Point]("embed record %d: %w", k.Index, err)
		}
		return fn.Ok(index.Point{ID: k.ID, Vector: vec, Payload: k.Payload})
	}
}

// checkDims records the dimensionality of the first vector of a run in
// sum.Dims and reports a later vector of a different size.
func checkDims(sum *Summary, vec []float32) error {
	if sum.Dims == 0 {
		sum.Dims = len(vec)
		return nil
	}
	return domain.ValidateVector(vec, sum.Dims)
}

// NewPipeline composes id resolution and embedding into one traced stage.
func NewPipeline(deps Deps) fn.Stage[Item, index.Point] {
	deps = deps.withDefaults()
	return fn.Then(
		fn.TracedStage("ingest.resolve_id", NewResolveID(deps.IDs)),
		fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder)),
	)
}

// keyString renders a record key for logs and events.
func keyString(key any) string {
	if key == nil {
		return ""
	}
	return fmt.Sprint(key)
}

// collectionGate calls an EnsureCollection hook until it succeeds once.
type collectionGate struct {
	mu     sync.Mutex
	done   bool
	ensure func(ctx context.Context, dims int) error
}

func (g *collectionGate) pass(ctx context.Context, dims int) error {
	if g.ensure == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	if err := g.ensure(ctx, dims); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	g.done = true
	return nil
}

// recorder wraps the event sink and metrics of one run.
type recorder struct {
	deps  Deps
	runID string
	mode  string
}

func (r recorder) emit(ctx context.Context, e runlog.Event) {
	e.Time = r.deps.Now().UTC()
	e.RunID = r.runID
	if e.Mode == "" && (e.Kind == runlog.KindRunStart || e.Kind == runlog.KindRunEnd) {
		e.Mode = r.mode
	}
	if err := r.deps.Events.Emit(ctx, e); err != nil {
		r.deps.Logger.Warn("ingest.event_dropped", "kind", string(e.Kind), "index", e.Index, "error", err)
	}
}

func (r recorder) outcome(outcome string) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.Counter(
		metrics.WithLabels("catalog_ingest_records_total", "mode", r.mode, "outcome", outcome),
		"Records processed by final outcome.",
	).Inc()
}

func (r recorder) writeLatency(start time.Time) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.Histogram(
		metrics.WithLabels("catalog_index_write_seconds", "mode", r.mode),
		"Index write latency.", nil,
	).Since(start)
}

// remaining tracks how many records of the run are still to be processed.
func (r recorder) remaining(n int) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.Gauge(
		metrics.WithLabels("catalog_ingest_remaining", "mode", r.mode),
		"Records of the current run not yet processed.",
	).Set(int64(n))
}
