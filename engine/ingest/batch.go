package ingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/index"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/runlog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/fn"
)

// DefaultBatchSize is the number of points per grouped write.
const DefaultBatchSize = 64

// BatchOpts configures a Batch run.
type BatchOpts struct {
	Size  int // points per write; defaults to DefaultBatchSize
	Limit int // records to process; 0 means all
}

// Batch embeds records and writes them in groups. Any embedding or write
// failure aborts the run: no point of the failing group is written, and
// groups written earlier stay written.
type Batch struct {
	deps     Deps
	opts     BatchOpts
	pipeline fn.Stage[Item, index.Point]
	gate     *collectionGate
}

// NewBatch creates a Batch ingestor.
func NewBatch(deps Deps, opts BatchOpts) *Batch {
	deps = deps.withDefaults()
	if opts.Size <= 0 {
		opts.Size = DefaultBatchSize
	}
	return &Batch{
		deps:     deps,
		opts:     opts,
		pipeline: NewPipeline(deps),
		gate:     &collectionGate{ensure: deps.EnsureCollection},
	}
}

// Run ingests items in order. The returned error wraps the first failure,
// so errors.Is(err, domain.ErrEmbeddingUnavailable) and
// errors.Is(err, domain.ErrWriteFailed) tell the two apart.
func (b *Batch) Run(ctx context.Context, items []Item) (Summary, error) {
	items = fn.Take(items, b.opts.Limit)
	rec := recorder{deps: b.deps, runID: b.deps.NewRunID(), mode: "batch"}
	log := b.deps.Logger.With("run_id", rec.runID, "mode", rec.mode)

	ctx, span := otel.Tracer("engine/ingest").Start(ctx, "ingest.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("ingest.records", len(items)))

	sum := Summary{RunID: rec.runID, Mode: rec.mode, Total: len(items)}
	rec.emit(ctx, runlog.Event{Kind: runlog.KindRunStart, Total: len(items)})
	log.Info("ingest.run_start", "records", len(items), "batch_size", b.opts.Size)

	fail := func(err error) (Summary, error) {
		sum.Failed = sum.Attempted - sum.Succeeded
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rec.emit(ctx, runlog.Event{
			Kind:      runlog.KindRunEnd,
			Total:     sum.Total,
			Succeeded: sum.Succeeded,
			Err:       err.Error(),
			Message:   sum.String(),
		})
		log.Error("ingest.run_aborted", "error", err, "summary", sum.String())
		return sum, err
	}

	rec.remaining(len(items))
	batches := fn.Chunk(items, b.opts.Size)
	for bi, group := range batches {
		points := make([]index.Point, 0, len(group))
		for _, it := range group {
			sum.Attempted++
			key := keyString(it.Key)
			p, err := b.pipeline(ctx, it).Unwrap()
			if err != nil {
				// Records embedded earlier in this group are never written.
				for i, p := range points {
					rec.outcome("aborted")
					sum.Outcomes = append(sum.Outcomes, Outcome{Index: group[i].Index, Key: keyString(group[i].Key), ID: p.ID.String(), State: StateEmbedded})
				}
				rec.outcome("embed_failed")
				sum.Outcomes = append(sum.Outcomes, Outcome{Index: it.Index, Key: key, State: StateEmbedFailed, Err: err})
				rec.emit(ctx, runlog.Event{Kind: runlog.KindEmbedFailed, Index: it.Index, Key: key, State: string(StateEmbedFailed), Err: err.Error()})
				return fail(fmt.Errorf("ingest: record %d (%s): %w", it.Index, key, err))
			}
			if err := checkDims(&sum, p.Vector); err != nil {
				log.Warn("ingest.dimension_drift", "index", it.Index, "want", sum.Dims, "error", err)
			}
			rec.emit(ctx, runlog.Event{Kind: runlog.KindEmbedded, Index: it.Index, Key: key, PointID: p.ID.String(), State: string(StateEmbedded)})
			points = append(points, p)
		}

		if err := b.gate.pass(ctx, sum.Dims); err != nil {
			return fail(fmt.Errorf("ingest: batch %d: %w", bi+1, err))
		}

		start := b.deps.Now()
		err := b.deps.Index.Upsert(ctx, points)
		rec.writeLatency(start)
		label := fmt.Sprintf("batch %d/%d", bi+1, len(batches))
		if err != nil {
			for i, p := range points {
				rec.outcome("write_failed")
				o := Outcome{Index: group[i].Index, Key: keyString(group[i].Key), ID: p.ID.String(), State: StateWriteFailed, Err: err}
				sum.Outcomes = append(sum.Outcomes, o)
				rec.emit(ctx, runlog.Event{Kind: runlog.KindWriteFailed, Index: o.Index, Key: o.Key, PointID: o.ID, State: string(o.State), Err: err.Error(), Message: label})
			}
			return fail(fmt.Errorf("ingest: batch %d (%d points): %w", bi+1, len(points), err))
		}

		for i, p := range points {
			rec.outcome("written")
			o := Outcome{Index: group[i].Index, Key: keyString(group[i].Key), ID: p.ID.String(), State: StateWritten}
			sum.Outcomes = append(sum.Outcomes, o)
			rec.emit(ctx, runlog.Event{Kind: runlog.KindWritten, Index: o.Index, Key: o.Key, PointID: o.ID, State: string(o.State), OK: runlog.Bool(true), Message: label})
		}
		sum.Succeeded += len(points)
		rec.remaining(len(items) - sum.Attempted)
		log.Info("ingest.batch_written", "batch", bi+1, "of", len(batches), "points", len(points))
	}

	rec.emit(ctx, runlog.Event{Kind: runlog.KindRunEnd, Total: sum.Total, Succeeded: sum.Succeeded, Message: sum.String()})
	log.Info("ingest.run_end", "summary", sum.String())
	return sum, nil
}
