package ingest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/index"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/runlog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/fn"
)

// PerItemOpts configures a PerItem run.
type PerItemOpts struct {
	// EmbedAttempts is the total number of embedding attempts per record.
	EmbedAttempts int
	// EmbedBackoff is the linear backoff step: attempt n waits n*EmbedBackoff.
	EmbedBackoff time.Duration
	// WriteAttempts is the total number of write attempts per record.
	WriteAttempts int
	// WriteDelay is the fixed wait before a write retry.
	WriteDelay time.Duration
	// Pause separates consecutive records regardless of outcome.
	Pause time.Duration
	// Limit caps the number of records; 0 means all.
	Limit int
}

// DefaultPerItemOpts: three embedding attempts 1s and 2s apart, two write
// attempts 0.5s apart, a 0.25s pause between records.
func DefaultPerItemOpts() PerItemOpts {
	return PerItemOpts{
		EmbedAttempts: 3,
		EmbedBackoff:  time.Second,
		WriteAttempts: 2,
		WriteDelay:    500 * time.Millisecond,
		Pause:         250 * time.Millisecond,
	}
}

// PerItem ingests one record at a time. A failing record is logged and
// skipped; the run always completes.
type PerItem struct {
	deps  Deps
	opts  PerItemOpts
	gate  *collectionGate
	embed fn.Stage[Keyed, index.Point]
	ids   fn.Stage[Item, Keyed]
}

// NewPerItem creates a PerItem ingestor.
func NewPerItem(deps Deps, opts PerItemOpts) *PerItem {
	deps = deps.withDefaults()
	if opts.EmbedAttempts <= 0 {
		opts.EmbedAttempts = 1
	}
	if opts.WriteAttempts <= 0 {
		opts.WriteAttempts = 1
	}
	return &PerItem{
		deps:  deps,
		opts:  opts,
		gate:  &collectionGate{ensure: deps.EnsureCollection},
		embed: fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder)),
		ids:   NewResolveID(deps.IDs),
	}
}

// Run ingests items in order and returns the summary. Record failures never
// end the run; a cancelled ctx stops it before the next record.
func (p *PerItem) Run(ctx context.Context, items []Item) Summary {
	items = fn.Take(items, p.opts.Limit)
	rec := recorder{deps: p.deps, runID: p.deps.NewRunID(), mode: "per-item"}
	log := p.deps.Logger.With("run_id", rec.runID, "mode", rec.mode)

	ctx, span := otel.Tracer("engine/ingest").Start(ctx, "ingest.per_item")
	defer span.End()
	span.SetAttributes(attribute.Int("ingest.records", len(items)))

	sum := Summary{RunID: rec.runID, Mode: rec.mode, Total: len(items)}
	rec.emit(ctx, runlog.Event{Kind: runlog.KindRunStart, Total: len(items)})
	rec.remaining(len(items))
	log.Info("ingest.run_start", "records", len(items))

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			log.Warn("ingest.run_interrupted", "error", err, "remaining", len(items)-i)
			break
		}
		out := p.record(ctx, rec, it, len(items), &sum)
		sum.Attempted++
		sum.Outcomes = append(sum.Outcomes, out)
		if out.State == StateWritten {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		rec.outcome(outcomeLabel(out.State))
		rec.remaining(len(items) - i - 1)

		if i < len(items)-1 {
			_ = fn.Sleep(ctx, p.opts.Pause)
		}
	}

	span.SetAttributes(attribute.Int("ingest.succeeded", sum.Succeeded))
	rec.emit(ctx, runlog.Event{Kind: runlog.KindRunEnd, Total: sum.Total, Succeeded: sum.Succeeded, Message: sum.String()})
	log.Info("ingest.run_end", "summary", sum.String(), "failed", sum.Failed)
	return sum
}

// record walks one item through the lifecycle and returns its final state.
func (p *PerItem) record(ctx context.Context, rec recorder, it Item, total int, sum *Summary) Outcome {
	lc := newLifecycle()
	key := keyString(it.Key)
	k := p.ids(ctx, it).UnwrapOr(Keyed{Item: it})
	out := Outcome{Index: it.Index, Key: key, ID: k.ID.String()}
	log := p.deps.Logger.With("run_id", rec.runID, "index", it.Index, "key", key)

	base := runlog.Event{Index: it.Index, Key: key, PointID: out.ID}
	event := func(kind runlog.Kind, mut func(*runlog.Event)) {
		e := base
		e.Kind = kind
		e.State = string(lc.state)
		if mut != nil {
			mut(&e)
		}
		rec.emit(ctx, e)
	}
	move := func(next State) {
		if err := lc.to(next); err != nil {
			log.Error("ingest.state", "error", err)
		}
	}

	event(runlog.KindRecordStart, func(e *runlog.Event) { e.Total = total })

	move(StateEmbedding)
	point, err := fn.Retry(ctx, fn.RetryOpts{
		MaxAttempts: p.opts.EmbedAttempts,
		InitialWait: p.opts.EmbedBackoff,
		Backoff:     fn.BackoffLinear,
		OnAttempt: func(attempt int, err error) {
			event(runlog.KindEmbedAttempt, func(e *runlog.Event) {
				e.Attempt = attempt
				e.OK = runlog.Bool(err == nil)
				if err != nil {
					e.Err = err.Error()
				}
			})
			if err != nil {
				log.Warn("ingest.embed_attempt_failed", "attempt", attempt, "of", p.opts.EmbedAttempts, "error", err)
			}
		},
	}, func(ctx context.Context) fn.Result[index.Point] {
		return p.embed(ctx, k)
	}).Unwrap()
	if err != nil {
		move(StateEmbedFailed)
		event(runlog.KindEmbedFailed, func(e *runlog.Event) { e.Err = err.Error() })
		log.Error("ingest.embed_failed", "error", err)
		out.State, out.Err = lc.state, err
		return out
	}
	move(StateEmbedded)
	event(runlog.KindEmbedded, func(e *runlog.Event) { e.Message = fmt.Sprintf("dims=%d", len(point.Vector)) })
	if err := checkDims(sum, point.Vector); err != nil {
		log.Warn("ingest.dimension_drift", "want", sum.Dims, "error", err)
	}

	move(StateWriting)
	_, err = fn.Retry(ctx, fn.RetryOpts{
		MaxAttempts: p.opts.WriteAttempts,
		InitialWait: p.opts.WriteDelay,
		Backoff:     fn.BackoffConstant,
		OnAttempt: func(attempt int, err error) {
			event(runlog.KindWriteAttempt, func(e *runlog.Event) {
				e.Attempt = attempt
				e.OK = runlog.Bool(err == nil)
				if err != nil {
					e.Err = err.Error()
				}
			})
			if err != nil {
				log.Warn("ingest.write_attempt_failed", "attempt", attempt, "of", p.opts.WriteAttempts, "error", err)
			}
		},
	}, func(ctx context.Context) fn.Result[struct{}] {
		if err := p.gate.pass(ctx, len(point.Vector)); err != nil {
			return fn.Err[struct{}](err)
		}
		start := p.deps.Now()
		err := p.deps.Index.Upsert(ctx, []index.Point{point})
		rec.writeLatency(start)
		return fn.FromPair(struct{}{}, err)
	}).Unwrap()
	if err != nil {
		move(StateWriteFailed)
		event(runlog.KindWriteFailed, func(e *runlog.Event) { e.Err = err.Error() })
		log.Error("ingest.write_failed", "error", err)
		out.State, out.Err = lc.state, err
		return out
	}

	move(StateWritten)
	event(runlog.KindWritten, func(e *runlog.Event) { e.OK = runlog.Bool(true) })
	log.Debug("ingest.written", "id", out.ID)
	out.State = lc.state
	return out
}

func outcomeLabel(s State) string {
	switch s {
	case StateWritten:
		return "written"
	case StateEmbedFailed:
		return "embed_failed"
	case StateWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}
